// Package app wires the configuration into a running service: store,
// aggregator, matching engine, coordinator, event broadcaster, metric
// sinks and the HTTP API.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agrilink/fleetcore/api"
	"github.com/agrilink/fleetcore/config"
	"github.com/agrilink/fleetcore/core/dispatch"
	"github.com/agrilink/fleetcore/core/events"
	"github.com/agrilink/fleetcore/core/fleet"
	"github.com/agrilink/fleetcore/core/matching"
	coremetrics "github.com/agrilink/fleetcore/core/metrics"
	"github.com/agrilink/fleetcore/core/mission"
	corestore "github.com/agrilink/fleetcore/core/store"
	"github.com/agrilink/fleetcore/infra/logger"
	"github.com/agrilink/fleetcore/infra/metrics"
	"github.com/agrilink/fleetcore/infra/mqtt"
	"github.com/agrilink/fleetcore/infra/store"
	"github.com/agrilink/fleetcore/internal/eventbus"
)

// Service owns every long-lived component of the dispatch core.
type Service struct {
	Coordinator *dispatch.Coordinator
	Fleet       *fleet.Aggregator
	Bus         *eventbus.Broadcaster

	cfg      *config.Config
	store    corestore.MissionStore
	ingestor *mqtt.Ingestor
	influx   *metrics.InfluxSink
	log      logger.Logger
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logger.SetGlobalLevel(cfg.Logging.Level)
	logg := logger.New("service")

	var (
		st  corestore.MissionStore
		err error
	)
	switch cfg.Store.Backend {
	case "postgres":
		st, err = store.Connect(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("mission store: %w", err)
		}
	default:
		st = corestore.NewMemoryStore()
	}

	var (
		sinks  []coremetrics.MetricsSink
		influx *metrics.InfluxSink
	)
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics)
		if is, ok := sink.(*metrics.InfluxSink); ok {
			influx = is
		}
		sinks = append(sinks, sink)
	}
	var sink coremetrics.MetricsSink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New(cfg.Dispatch.QueueSize)
	bus.SetHooks(func() { eventsPublished.Inc() }, func(n int) { eventsDropped.Add(float64(n)) })
	registerSubscriberGauge(bus)

	agg := fleet.NewAggregator(cfg.Fleet, st, logger.New("fleet"))
	engine := matching.NewEngine(cfg.Dispatch.Weights, logger.New("matching"))
	coord, err := dispatch.NewCoordinator(st, mission.New(), engine, agg, bus, sink, logger.New("dispatch"), cfg.Dispatch.MatchTimeout())
	if err != nil {
		return nil, err
	}

	svc := &Service{
		Coordinator: coord,
		Fleet:       agg,
		Bus:         bus,
		cfg:         cfg,
		store:       st,
		influx:      influx,
		log:         logg,
	}
	if cfg.MQTT.Enabled {
		var rec coremetrics.CandidateStateRecorder
		if r, ok := sink.(coremetrics.CandidateStateRecorder); ok {
			rec = r
		}
		ing, err := mqtt.NewIngestor(cfg.MQTT, agg, rec)
		if err != nil {
			return nil, fmt.Errorf("telemetry ingestor: %w", err)
		}
		svc.ingestor = ing
	}
	return svc, nil
}

// Run starts the HTTP API, the telemetry ingestor and the fleet snapshot
// loop, then blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	e := api.NewServer(s.Coordinator, s.Fleet, s.Bus, s.cfg.Dispatch.SuggestionLimit).Echo()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
	}()

	if s.ingestor != nil {
		go s.ingestor.Start(ctx)
	}
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	go s.snapshotLoop(ctx)

	s.log.Infof("api listening on %s", s.cfg.Server.Addr)
	if err := e.Start(s.cfg.Server.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// snapshotLoop periodically recomputes the fleet aggregate and publishes
// it, one event for the metrics and one per open incident.
func (s *Service) snapshotLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.Server.MetricsIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, m := s.Fleet.Snapshot(ctx)
			s.Bus.Publish(events.FleetMetricsUpdated{Metrics: m, Time: m.GeneratedAt})
			for _, inc := range m.Incidents {
				s.Bus.Publish(inc)
			}
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.Bus.Close()
	if s.influx != nil {
		s.influx.Close()
	}
	return s.store.Close()
}

var (
	eventsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_events_published_total",
		Help: "Number of events published on the broadcaster",
	})
	eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_events_dropped_total",
		Help: "Number of events dropped from slow subscriber queues",
	})
)

func init() {
	for _, c := range []prometheus.Counter{eventsPublished, eventsDropped} {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}

func registerSubscriberGauge(bus *eventbus.Broadcaster) {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "broadcast_subscribers",
		Help: "Number of live event stream subscriptions",
	}, func() float64 { return float64(bus.SubscriberCount()) })
	if err := prometheus.Register(g); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			panic(err)
		}
	}
}
