package metrics

import (
	coremetrics "github.com/agrilink/fleetcore/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records dispatch events in Prometheus metrics.
type PromSink struct {
	assignments *prometheus.CounterVec
	transitions *prometheus.CounterVec
	fuel        *prometheus.GaugeVec
}

// NewPromSink registers the sink's collectors on the default registerer.
// The /metrics server is started separately with StartPromServer.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers the collectors on the provided
// registerer. A nil registerer defaults to the global one.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mission_assignments_total",
		Help: "Total number of candidate assignments",
	}, []string{"priority"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mission_status_events_total",
		Help: "Status transition events recorded by the sink",
	}, []string{"from", "to"})
	fuel := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_unit_fuel_pct",
		Help: "Last reported fuel level per truck",
	}, []string{"truck_id"})

	if err := reg.Register(assignments); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			assignments = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(transitions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			transitions = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fuel); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			fuel = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	return &PromSink{assignments: assignments, transitions: transitions, fuel: fuel}, nil
}

// RecordAssignment increments the assignment counter per record.
func (s *PromSink) RecordAssignment(recs []coremetrics.AssignmentRecord) error {
	for _, r := range recs {
		s.assignments.WithLabelValues(r.Priority.String()).Inc()
	}
	return nil
}

// RecordTransition increments the transition counter.
func (s *PromSink) RecordTransition(rec coremetrics.TransitionRecord) error {
	s.transitions.WithLabelValues(rec.From.String(), rec.To.String()).Inc()
	return nil
}

// RecordCandidateState tracks the latest fuel reading per truck.
func (s *PromSink) RecordCandidateState(rec coremetrics.CandidateStateRecord) error {
	s.fuel.WithLabelValues(rec.Candidate.TruckID).Set(rec.FuelPct)
	return nil
}
