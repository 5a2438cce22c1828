package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the core. Callers match them with
// errors.Is after any amount of wrapping.
var (
	ErrNotFound = errors.New("mission not found")
	ErrConflict = errors.New("candidate already committed to another mission")
	ErrTimeout  = errors.New("operation exceeded its time budget")
	ErrInternal = errors.New("internal error")
)

// ValidationError reports malformed or missing input. The caller can
// recover by correcting the named field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError reports a status change that the state machine
// does not allow. It is a business-rule violation, not a bug.
type InvalidTransitionError struct {
	MissionID string
	From      Status
	To        Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("mission %s: transition %s -> %s not allowed", e.MissionID, e.From, e.To)
}

// InvalidStateError reports an operation attempted on a mission whose
// current status does not permit it.
type InvalidStateError struct {
	MissionID string
	Status    Status
	Op        string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("mission %s: %s not allowed in status %s", e.MissionID, e.Op, e.Status)
}

// MissingEvidenceError reports a transition that requires an evidence
// reference which was not supplied.
type MissingEvidenceError struct {
	MissionID string
	To        Status
}

func (e MissingEvidenceError) Error() string {
	return fmt.Sprintf("mission %s: transition to %s requires evidence", e.MissionID, e.To)
}
