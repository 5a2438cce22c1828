package metrics

import coremetrics "github.com/agrilink/fleetcore/core/metrics"

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignment forwards the records to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordAssignment(recs []coremetrics.AssignmentRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignment(recs); err != nil {
			return err
		}
	}
	return nil
}

// RecordTransition forwards transition records to sinks that accept them.
func (m *MultiSink) RecordTransition(rec coremetrics.TransitionRecord) error {
	for _, s := range m.Sinks {
		if tr, ok := s.(coremetrics.TransitionRecorder); ok {
			if err := tr.RecordTransition(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordCandidateState forwards fleet unit snapshots to sinks that accept
// them.
func (m *MultiSink) RecordCandidateState(rec coremetrics.CandidateStateRecord) error {
	for _, s := range m.Sinks {
		if cr, ok := s.(coremetrics.CandidateStateRecorder); ok {
			if err := cr.RecordCandidateState(rec); err != nil {
				return err
			}
		}
	}
	return nil
}
