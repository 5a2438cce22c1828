package model

import (
	"math"
	"time"
)

// Availability describes whether a fleet unit can take new work.
type Availability string

const (
	Available   Availability = "available"
	EnRoute     Availability = "en-route"
	Maintenance Availability = "maintenance"
	Offline     Availability = "offline"
)

// Valid reports whether the availability value is one of the known states.
func (a Availability) Valid() bool {
	switch a {
	case Available, EnRoute, Maintenance, Offline:
		return true
	}
	return false
}

// Specialization tags understood by the matching engine. Missions carrying
// one of these as a required tag exclude candidates without it.
const (
	TagHazmat       = "hazmat"
	TagRefrigerated = "refrigerated"
)

// Candidate is a driver/truck pairing eligible for mission assignment.
// Records are produced by the telemetry aggregator and are read-only for
// the matching engine.
type Candidate struct {
	DriverID     string       `json:"driver_id"`
	TruckID      string       `json:"truck_id"`
	Location     Location     `json:"location"`
	Availability Availability `json:"availability"`
	Region       string       `json:"region,omitempty"`
	CapacityKg   float64      `json:"capacity_kg"`
	Tags         []string     `json:"tags,omitempty"`
	// LoadFactor is the fraction of capacity already committed, 0 for an
	// idle unit and 1 for a fully booked one.
	LoadFactor float64   `json:"load_factor"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks that the candidate record is usable for matching.
func (c Candidate) Validate() error {
	switch {
	case c.DriverID == "":
		return ValidationError{Field: "driver_id", Reason: "required"}
	case c.TruckID == "":
		return ValidationError{Field: "truck_id", Reason: "required"}
	case c.CapacityKg <= 0:
		return ValidationError{Field: "capacity_kg", Reason: "must be positive"}
	case !c.Availability.Valid():
		return ValidationError{Field: "availability", Reason: "unknown state"}
	}
	return nil
}

// HasTag reports whether the candidate carries the given specialization.
func (c Candidate) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a copy that does not share the tags slice.
func (c Candidate) Clone() Candidate {
	cp := c
	cp.Tags = append([]string(nil), c.Tags...)
	return cp
}

const earthRadiusKm = 6371.0

// DistanceKm returns the haversine distance between two locations. It
// returns ok=false when either side has no coordinates.
func DistanceKm(a, b Location) (float64, bool) {
	if !a.HasCoords || !b.HasCoords {
		return 0, false
	}
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h)), true
}
