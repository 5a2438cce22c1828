package model

import (
	"time"
)

// Location is a named place with optional coordinates. Coordinates are
// considered set when HasCoords is true; (0,0) is a valid position.
type Location struct {
	Name      string  `json:"name"`
	Lat       float64 `json:"lat,omitempty"`
	Lon       float64 `json:"lon,omitempty"`
	HasCoords bool    `json:"has_coords,omitempty"`
}

// Mission is one shipment from an origin to a destination tracked through
// its lifecycle. Status mutations go through the mission state machine;
// History is append-only and ordered by acceptance time.
type Mission struct {
	ID           string         `json:"id"`
	ShipperID    string         `json:"shipper_id"`
	ReceiverID   string         `json:"receiver_id"`
	Product      string         `json:"product"`
	Quantity     float64        `json:"quantity"`
	Unit         string         `json:"unit"`
	Priority     Priority       `json:"priority"`
	Origin       Location       `json:"origin"`
	Destination  Location       `json:"destination"`
	RequiredTags []string       `json:"required_tags,omitempty"`
	DriverID     string         `json:"driver_id,omitempty"`
	TruckID      string         `json:"truck_id,omitempty"`
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	History      []HistoryEntry `json:"history"`
}

// HistoryEntry is the immutable audit record of one accepted transition.
// Evidence is an opaque reference (photo or signature id); it is never
// interpreted by the core.
type HistoryEntry struct {
	MissionID string    `json:"mission_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Evidence  string    `json:"evidence,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

// Validate checks the fields required to accept a mission.
func (m Mission) Validate() error {
	switch {
	case m.ShipperID == "":
		return ValidationError{Field: "shipper_id", Reason: "required"}
	case m.ReceiverID == "":
		return ValidationError{Field: "receiver_id", Reason: "required"}
	case m.Product == "":
		return ValidationError{Field: "product", Reason: "required"}
	case m.Quantity <= 0:
		return ValidationError{Field: "quantity", Reason: "must be positive"}
	case m.Origin.Name == "":
		return ValidationError{Field: "origin", Reason: "required"}
	case m.Destination.Name == "":
		return ValidationError{Field: "destination", Reason: "required"}
	}
	return nil
}

// RequiresTag reports whether the mission demands the given specialization.
func (m Mission) RequiresTag(tag string) bool {
	for _, t := range m.RequiredTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand missions across goroutine
// boundaries without sharing the history slice.
func (m Mission) Clone() Mission {
	cp := m
	cp.RequiredTags = append([]string(nil), m.RequiredTags...)
	cp.History = append([]HistoryEntry(nil), m.History...)
	return cp
}
