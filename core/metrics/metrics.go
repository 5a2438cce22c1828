// Package metrics defines the observability sink contracts consumed by
// the dispatch coordinator and the telemetry ingestor. Implementations
// live under infra/metrics.
package metrics

import (
	"time"

	"github.com/agrilink/fleetcore/core/model"
)

// AssignmentRecord is one candidate committed to a mission.
type AssignmentRecord struct {
	MissionID string
	DriverID  string
	TruckID   string
	Priority  model.Priority
	Time      time.Time
}

// TransitionRecord is one accepted status transition.
type TransitionRecord struct {
	MissionID string
	From      model.Status
	To        model.Status
	Actor     string
	Time      time.Time
}

// CandidateStateRecord is a snapshot of one fleet unit, recorded on
// telemetry ingestion.
type CandidateStateRecord struct {
	Candidate model.Candidate
	FuelPct   float64
	SpeedKmh  float64
	Source    string
	Time      time.Time
}

// MetricsSink records assignment decisions.
type MetricsSink interface {
	RecordAssignment(recs []AssignmentRecord) error
}

// TransitionRecorder optionally records status transitions.
type TransitionRecorder interface {
	RecordTransition(rec TransitionRecord) error
}

// CandidateStateRecorder optionally records fleet unit snapshots.
type CandidateStateRecorder interface {
	RecordCandidateState(rec CandidateStateRecord) error
}

// NopSink discards every record.
type NopSink struct{}

func (NopSink) RecordAssignment([]AssignmentRecord) error       { return nil }
func (NopSink) RecordTransition(TransitionRecord) error         { return nil }
func (NopSink) RecordCandidateState(CandidateStateRecord) error { return nil }

// Config selects and parameterizes the metric backends.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}
