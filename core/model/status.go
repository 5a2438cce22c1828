package model

import "fmt"

// Status represents the lifecycle state of a mission.
type Status int

const (
	StatusCreated Status = iota
	StatusAssigned
	StatusPickedUp
	StatusInTransit
	StatusDelivered
	StatusConfirmed
	StatusCancelled
	StatusFailed
)

// String returns the wire representation of the status.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusAssigned:
		return "ASSIGNED"
	case StatusPickedUp:
		return "PICKED_UP"
	case StatusInTransit:
		return "IN_TRANSIT"
	case StatusDelivered:
		return "DELIVERED"
	case StatusConfirmed:
		return "CONFIRMED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus converts a wire representation back into a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "CREATED":
		return StatusCreated, nil
	case "ASSIGNED":
		return StatusAssigned, nil
	case "PICKED_UP":
		return StatusPickedUp, nil
	case "IN_TRANSIT":
		return StatusInTransit, nil
	case "DELIVERED":
		return StatusDelivered, nil
	case "CONFIRMED":
		return StatusConfirmed, nil
	case "CANCELLED":
		return StatusCancelled, nil
	case "FAILED":
		return StatusFailed, nil
	default:
		return 0, fmt.Errorf("unknown mission status: %q", s)
	}
}

// Terminal reports whether the status ends the mission lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Priority classifies how urgent a mission is.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityCritical
)

// String returns the wire representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "NORMAL"
	}
}

// ParsePriority converts a wire representation back into a Priority.
// An empty string maps to PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "", "NORMAL":
		return PriorityNormal, nil
	case "HIGH":
		return PriorityHigh, nil
	case "CRITICAL":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown mission priority: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(b []byte) error {
	pr, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = pr
	return nil
}
