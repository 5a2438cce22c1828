package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	missionsCreated prometheus.Counter
	transitions     *prometheus.CounterVec
	assignConflicts prometheus.Counter
	matchingLatency prometheus.Histogram
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, *prometheus.CounterVec, prometheus.Counter, prometheus.Histogram) {
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "missions_created_total",
		Help: "Number of missions accepted by the coordinator",
	})
	trans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mission_transitions_total",
		Help: "Number of accepted status transitions",
	}, []string{"status"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assign_conflicts_total",
		Help: "Number of assignment attempts rejected because the candidate was already committed",
	})
	lat := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matching_latency_seconds",
		Help:    "Latency of matching engine calls",
		Buckets: prometheus.DefBuckets,
	})
	return created, trans, conflicts, lat
}

func init() {
	missionsCreated, transitions, assignConflicts, matchingLatency = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(missionsCreated, transitions, assignConflicts, matchingLatency)
}

// ResetMetrics reinitializes the collectors for tests and registers them
// on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	missionsCreated, transitions, assignConflicts, matchingLatency = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
