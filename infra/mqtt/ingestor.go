// Package mqtt carries the telemetry ingestion surface. Vehicles publish
// one JSON report per message; ingestion is fire-and-forget from the
// vehicle's perspective, so malformed payloads are logged and dropped
// rather than surfaced.
package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agrilink/fleetcore/core/fleet"
	coremetrics "github.com/agrilink/fleetcore/core/metrics"
	"github.com/agrilink/fleetcore/core/model"
	"github.com/agrilink/fleetcore/infra/logger"
)

// Ingestor subscribes to vehicle telemetry topics and feeds the fleet
// aggregator.
type Ingestor struct {
	cfg  Config
	cli  paho.Client
	agg  *fleet.Aggregator
	sink coremetrics.CandidateStateRecorder
	log  logger.Logger

	received prometheus.Counter
	rejected prometheus.Counter
}

// NewIngestor connects to the broker and prepares telemetry collection.
// sink may be nil.
func NewIngestor(cfg Config, agg *fleet.Aggregator, sink coremetrics.CandidateStateRecorder) (*Ingestor, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id := cfg.ClientID
	if id != "" {
		id += "-ingest"
	} else {
		id = "ingest-" + uuid.NewString()
	}
	log := logger.New("telemetry")
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(id)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	in := &Ingestor{
		cfg:  cfg,
		cli:  cli,
		agg:  agg,
		sink: sink,
		log:  log,
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_reports_received_total",
			Help: "Number of telemetry reports received",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_reports_rejected_total",
			Help: "Number of telemetry reports rejected as malformed",
		}),
	}
	if err := registerCounter(in.received); err != nil {
		return nil, err
	}
	if err := registerCounter(in.rejected); err != nil {
		return nil, err
	}
	return in, nil
}

func registerCounter(c prometheus.Counter) error {
	if err := prometheus.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	return nil
}

// Start subscribes to the telemetry topic and blocks until the context is
// done.
func (in *Ingestor) Start(ctx context.Context) {
	if token := in.cli.Subscribe(in.cfg.telemetryTopic(), in.cfg.QoS, in.onReport); token.Wait() && token.Error() != nil {
		in.log.Errorf("subscribe telemetry: %v", token.Error())
	}
	<-ctx.Done()
	if in.cli.IsConnected() {
		in.cli.Disconnect(250)
	}
}

func (in *Ingestor) onReport(_ paho.Client, msg paho.Message) {
	in.received.Inc()
	var report model.TelemetryReport
	if err := json.Unmarshal(msg.Payload(), &report); err != nil {
		in.rejected.Inc()
		in.log.Warnf("telemetry decode: %v", err)
		return
	}
	if report.TruckID == "" {
		report.TruckID = truckIDFromTopic(msg.Topic())
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now()
	}
	if err := in.agg.Ingest(report); err != nil {
		in.rejected.Inc()
		in.log.Warnf("telemetry rejected for %s: %v", report.TruckID, err)
		return
	}
	if in.sink != nil {
		rec := coremetrics.CandidateStateRecord{
			Candidate: report.Candidate(),
			FuelPct:   report.FuelPct,
			SpeedKmh:  report.SpeedKmh,
			Source:    "mqtt",
			Time:      report.Timestamp,
		}
		if err := in.sink.RecordCandidateState(rec); err != nil {
			in.log.Errorf("candidate state metrics: %v", err)
		}
	}
}

func truckIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
