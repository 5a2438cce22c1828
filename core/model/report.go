package model

import "time"

// TelemetryReport is one periodic state report from a vehicle. Reports are
// keyed by truck id; the aggregator applies them last-write-wins by the
// Timestamp field, not by arrival order.
type TelemetryReport struct {
	TruckID      string       `json:"truck_id"`
	DriverID     string       `json:"driver_id"`
	Lat          float64      `json:"lat"`
	Lon          float64      `json:"lon"`
	FuelPct      float64      `json:"fuel_pct"`
	SpeedKmh     float64      `json:"speed_kmh"`
	Availability Availability `json:"availability"`
	Region       string       `json:"region,omitempty"`
	CapacityKg   float64      `json:"capacity_kg"`
	Tags         []string     `json:"tags,omitempty"`
	LoadFactor   float64      `json:"load_factor"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Validate rejects reports that cannot be applied to the fleet snapshot.
func (r TelemetryReport) Validate() error {
	switch {
	case r.TruckID == "":
		return ValidationError{Field: "truck_id", Reason: "required"}
	case r.DriverID == "":
		return ValidationError{Field: "driver_id", Reason: "required"}
	case r.FuelPct < 0 || r.FuelPct > 100:
		return ValidationError{Field: "fuel_pct", Reason: "must be within [0,100]"}
	case r.SpeedKmh < 0:
		return ValidationError{Field: "speed_kmh", Reason: "must not be negative"}
	case r.CapacityKg <= 0:
		return ValidationError{Field: "capacity_kg", Reason: "must be positive"}
	case !r.Availability.Valid():
		return ValidationError{Field: "availability", Reason: "unknown state"}
	case r.Timestamp.IsZero():
		return ValidationError{Field: "timestamp", Reason: "required"}
	}
	return nil
}

// Candidate converts the report into a candidate record.
func (r TelemetryReport) Candidate() Candidate {
	return Candidate{
		DriverID:     r.DriverID,
		TruckID:      r.TruckID,
		Location:     Location{Lat: r.Lat, Lon: r.Lon, HasCoords: true},
		Availability: r.Availability,
		Region:       r.Region,
		CapacityKg:   r.CapacityKg,
		Tags:         append([]string(nil), r.Tags...),
		LoadFactor:   r.LoadFactor,
		UpdatedAt:    r.Timestamp,
	}
}
