package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/agrilink/fleetcore/core/metrics"
	"github.com/agrilink/fleetcore/infra/logger"
)

// InfluxSink writes dispatch and fleet events to an InfluxDB instance
// using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(cfg coremetrics.Config) *InfluxSink {
	base := strings.TrimSuffix(cfg.InfluxURL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.InfluxToken,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink when the health check fails, so a missing backend never takes
// the dispatcher down.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordAssignment writes assignment decisions as line protocol points.
func (s *InfluxSink) RecordAssignment(recs []coremetrics.AssignmentRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range recs {
		p := write.NewPointWithMeasurement("mission_assignment").
			AddTag("mission_id", r.MissionID).
			AddTag("driver_id", r.DriverID).
			AddTag("truck_id", r.TruckID).
			AddTag("priority", r.Priority.String()).
			AddTag("component", "dispatch_coordinator").
			AddField("count", 1).
			SetTime(r.Time)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordTransition writes one status transition point.
func (s *InfluxSink) RecordTransition(rec coremetrics.TransitionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("mission_transition").
		AddTag("mission_id", rec.MissionID).
		AddTag("from", rec.From.String()).
		AddTag("to", rec.To.String()).
		AddTag("actor", rec.Actor).
		AddField("count", 1).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordCandidateState writes a snapshot of one fleet unit.
func (s *InfluxSink) RecordCandidateState(rec coremetrics.CandidateStateRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := rec.Candidate
	p := write.NewPointWithMeasurement("fleet_unit_state").
		AddTag("truck_id", c.TruckID).
		AddTag("driver_id", c.DriverID).
		AddTag("availability", string(c.Availability)).
		AddTag("source", rec.Source).
		AddField("fuel_pct", round3(rec.FuelPct)).
		AddField("speed_kmh", round3(rec.SpeedKmh)).
		AddField("load_factor", round3(c.LoadFactor)).
		AddField("capacity_kg", round3(c.CapacityKg)).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
