// Package mission implements the mission state machine, the single
// authority on legal status transitions.
package mission

import (
	"time"

	"github.com/agrilink/fleetcore/core/events"
	"github.com/agrilink/fleetcore/core/model"
)

// successors maps each status to the statuses reachable from it.
// Cancellation is legal from every non-terminal status; failure only once
// the cargo is on the road.
var successors = map[model.Status][]model.Status{
	model.StatusCreated:   {model.StatusAssigned, model.StatusCancelled},
	model.StatusAssigned:  {model.StatusPickedUp, model.StatusCancelled},
	model.StatusPickedUp:  {model.StatusInTransit, model.StatusFailed, model.StatusCancelled},
	model.StatusInTransit: {model.StatusDelivered, model.StatusFailed, model.StatusCancelled},
	model.StatusDelivered: {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed: nil,
	model.StatusCancelled: nil,
	model.StatusFailed:    nil,
}

// evidenceRequired lists target statuses that must carry a proof
// reference. Delivery needs a proof-of-delivery (photo or signature id);
// other statuses accept evidence but do not demand it.
var evidenceRequired = map[model.Status]bool{
	model.StatusDelivered: true,
}

// Machine validates and applies status transitions. The zero value is
// ready to use; Now is overridable for tests.
type Machine struct {
	Now func() time.Time
}

// New returns a Machine using wall-clock time.
func New() *Machine { return &Machine{Now: time.Now} }

// CanTransition reports whether target is a legal successor of from.
func CanTransition(from, target model.Status) bool {
	for _, s := range successors[from] {
		if s == target {
			return true
		}
	}
	return false
}

// Transition applies the requested status to the mission in place.
//
// Re-submitting the transition that just landed (target equals the
// current status) is a no-op returning a nil event, so at-least-once
// clients can retry safely. A duplicate of an older transition is judged
// against the current status like any other request and rejected once the
// mission has moved on. On success the mission status, history and update
// time are set and the event to broadcast is returned. Nothing is emitted
// on failure.
func (sm *Machine) Transition(m *model.Mission, target model.Status, actor, evidence, notes string) (*events.MissionStatusChanged, error) {
	if m.Status == target {
		return nil, nil
	}
	if !CanTransition(m.Status, target) {
		return nil, model.InvalidTransitionError{MissionID: m.ID, From: m.Status, To: target}
	}
	if evidenceRequired[target] && evidence == "" {
		return nil, model.MissingEvidenceError{MissionID: m.ID, To: target}
	}

	now := sm.now()
	entry := model.HistoryEntry{
		MissionID: m.ID,
		From:      m.Status,
		To:        target,
		Timestamp: now,
		Actor:     actor,
		Evidence:  evidence,
		Notes:     notes,
	}
	ev := &events.MissionStatusChanged{
		MissionID: m.ID,
		From:      m.Status,
		To:        target,
		Actor:     actor,
		Evidence:  evidence,
		Notes:     notes,
		Time:      now,
	}
	m.Status = target
	m.UpdatedAt = now
	m.History = append(m.History, entry)
	return ev, nil
}

func (sm *Machine) now() time.Time {
	if sm.Now != nil {
		return sm.Now()
	}
	return time.Now()
}
