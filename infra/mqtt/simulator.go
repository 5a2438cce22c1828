package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/agrilink/fleetcore/core/model"
	"github.com/agrilink/fleetcore/infra/logger"
)

// Simulator publishes synthetic telemetry for a number of trucks. It is
// meant for load-testing the ingestion surface and demoing the
// dashboards, not for production use.
type Simulator struct {
	cfg      Config
	cli      paho.Client
	log      logger.Logger
	units    int
	interval time.Duration
	rng      *rand.Rand
}

// NewSimulator connects a publisher-only client to the broker.
func NewSimulator(cfg Config, units int, interval time.Duration, seed int64) (*Simulator, error) {
	cfg.SetDefaults()
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker is required")
	}
	if units <= 0 {
		units = 5
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).
		SetClientID("sim-" + uuid.NewString())
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Simulator{
		cfg:      cfg,
		cli:      cli,
		log:      logger.New("simulator"),
		units:    units,
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

// Run publishes jittered reports for every unit until the context is
// done.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.publishRound()
		case <-ctx.Done():
			if s.cli.IsConnected() {
				s.cli.Disconnect(250)
			}
			return
		}
	}
}

func (s *Simulator) publishRound() {
	now := time.Now()
	for i := 0; i < s.units; i++ {
		report := model.TelemetryReport{
			TruckID:      fmt.Sprintf("truck-%02d", i),
			DriverID:     fmt.Sprintf("driver-%02d", i),
			Lat:          46.2 + s.rng.Float64(),
			Lon:          2.2 + s.rng.Float64(),
			FuelPct:      20 + s.rng.Float64()*80,
			SpeedKmh:     s.rng.Float64() * 90,
			Availability: model.Available,
			Region:       "centre",
			CapacityKg:   5000 + float64(i)*500,
			LoadFactor:   s.rng.Float64() * 0.5,
			Timestamp:    now,
		}
		payload, err := json.Marshal(report)
		if err != nil {
			s.log.Errorf("marshal report: %v", err)
			continue
		}
		topic := s.cfg.TelemetryPrefix + "/" + report.TruckID
		if token := s.cli.Publish(topic, s.cfg.QoS, false, payload); token.Wait() && token.Error() != nil {
			s.log.Errorf("publish %s: %v", topic, token.Error())
		}
	}
}
