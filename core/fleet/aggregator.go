// Package fleet ingests periodic vehicle reports and exposes the current
// candidate snapshot plus aggregated fleet metrics.
package fleet

import (
	"context"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/agrilink/fleetcore/core/events"
	"github.com/agrilink/fleetcore/core/logger"
	"github.com/agrilink/fleetcore/core/model"
)

// MissionCounter provides mission counts for the metrics snapshot. The
// mission store implements it.
type MissionCounter interface {
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
}

// Config tunes aggregation thresholds.
type Config struct {
	// LowFuelPct is the fuel level below which an incident is raised.
	LowFuelPct float64 `json:"low_fuel_pct"`
	// StaleAfterSeconds marks a unit silent when its last report is older.
	StaleAfterSeconds int `json:"stale_after_seconds"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.LowFuelPct <= 0 {
		c.LowFuelPct = 15
	}
	if c.StaleAfterSeconds <= 0 {
		c.StaleAfterSeconds = 120
	}
}

func (c Config) staleAfter() time.Duration {
	return time.Duration(c.StaleAfterSeconds) * time.Second
}

// unit is the retained per-truck state: the candidate record plus the raw
// readings needed for fleet-wide statistics.
type unit struct {
	cand     model.Candidate
	fuelPct  float64
	speedKmh float64
	reserved bool
}

// Aggregator holds the in-memory fleet snapshot. Ingestion is
// last-write-wins by report timestamp; out-of-order reports older than
// the stored one are discarded.
type Aggregator struct {
	cfg      Config
	counter  MissionCounter
	log      logger.Logger
	now      func() time.Time
	mu       sync.RWMutex
	units    map[string]*unit
	rejected int
}

// NewAggregator creates an Aggregator. counter may be nil; mission counts
// are then reported as zero.
func NewAggregator(cfg Config, counter MissionCounter, log logger.Logger) *Aggregator {
	cfg.SetDefaults()
	return &Aggregator{
		cfg:     cfg,
		counter: counter,
		log:     log,
		now:     time.Now,
		units:   make(map[string]*unit),
	}
}

// Ingest applies one telemetry report. Malformed reports are rejected
// with a validation error the caller is expected to log and drop; they
// never abort aggregation.
func (a *Aggregator) Ingest(report model.TelemetryReport) error {
	if err := report.Validate(); err != nil {
		a.mu.Lock()
		a.rejected++
		a.mu.Unlock()
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.units[report.TruckID]
	if ok && !report.Timestamp.After(u.cand.UpdatedAt) {
		// Stale or duplicate report; ordering is by report timestamp,
		// not arrival order.
		return nil
	}
	cand := report.Candidate()
	if ok && u.reserved {
		// A committed unit stays en-route until released, regardless of
		// what the vehicle reports.
		cand.Availability = model.EnRoute
	}
	if !ok {
		u = &unit{}
		a.units[report.TruckID] = u
	}
	u.cand = cand
	u.fuelPct = report.FuelPct
	u.speedKmh = report.SpeedKmh
	return nil
}

// Candidates returns a copy of all current candidate records, ordered by
// driver id for deterministic matching input.
func (a *Aggregator) Candidates() []model.Candidate {
	a.mu.RLock()
	defer a.mu.RUnlock()
	res := make([]model.Candidate, 0, len(a.units))
	for _, u := range a.units {
		res = append(res, u.cand.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].DriverID < res[j].DriverID })
	return res
}

// Reserve atomically marks the candidate unavailable for further
// assignment. It returns model.ErrConflict when the unit is unknown,
// already reserved, or not currently available, and model.ErrNotFound
// when the pairing does not match the snapshot.
func (a *Aggregator) Reserve(driverID, truckID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.units[truckID]
	if !ok || u.cand.DriverID != driverID {
		return model.ErrNotFound
	}
	if u.reserved || u.cand.Availability != model.Available {
		return model.ErrConflict
	}
	u.reserved = true
	u.cand.Availability = model.EnRoute
	return nil
}

// Release returns a previously reserved candidate to the pool. Unknown
// units are ignored; releasing is used on rollback paths and must not
// fail them further.
func (a *Aggregator) Release(driverID, truckID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.units[truckID]
	if !ok || u.cand.DriverID != driverID {
		return
	}
	u.reserved = false
	u.cand.Availability = model.Available
}

// Snapshot returns the candidates and the aggregated metrics as one
// consistent read.
func (a *Aggregator) Snapshot(ctx context.Context) ([]model.Candidate, events.FleetMetrics) {
	now := a.now()
	a.mu.RLock()
	cands := make([]model.Candidate, 0, len(a.units))
	var (
		speeds []float64
		fuels  []float64
		fresh  int
	)
	m := events.FleetMetrics{GeneratedAt: now}
	for _, u := range a.units {
		cands = append(cands, u.cand.Clone())
		speeds = append(speeds, u.speedKmh)
		fuels = append(fuels, u.fuelPct)
		if now.Sub(u.cand.UpdatedAt) <= a.cfg.staleAfter() {
			fresh++
		}
		switch u.cand.Availability {
		case model.Available:
			m.AvailableUnits++
		case model.EnRoute:
			m.EnRouteUnits++
		}
		if inc, ok := a.incidentFor(u, now); ok {
			m.Incidents = append(m.Incidents, inc)
		}
	}
	a.mu.RUnlock()
	sort.Slice(cands, func(i, j int) bool { return cands[i].DriverID < cands[j].DriverID })
	sort.Slice(m.Incidents, func(i, j int) bool { return m.Incidents[i].TruckID < m.Incidents[j].TruckID })

	if len(speeds) > 0 {
		m.MeanSpeedKmh = stat.Mean(speeds, nil)
		sort.Float64s(fuels)
		m.FuelPctQuantiles = map[string]float64{
			"p10": stat.Quantile(0.10, stat.Empirical, fuels, nil),
			"p50": stat.Quantile(0.50, stat.Empirical, fuels, nil),
			"p90": stat.Quantile(0.90, stat.Empirical, fuels, nil),
		}
	}
	m.MeshHealthy = len(cands) == 0 || fresh == len(cands)

	if a.counter != nil {
		if counts, err := a.counter.CountByStatus(ctx); err == nil {
			m.PendingMissions = counts[model.StatusCreated]
			m.ActiveMissions = counts[model.StatusAssigned] +
				counts[model.StatusPickedUp] + counts[model.StatusInTransit] +
				counts[model.StatusDelivered]
			m.CompletedMissions = counts[model.StatusConfirmed]
		} else if a.log != nil {
			a.log.Errorf("mission counts unavailable: %v", err)
		}
	}
	return cands, m
}

func (a *Aggregator) incidentFor(u *unit, now time.Time) (events.FleetIncident, bool) {
	switch {
	case u.fuelPct < a.cfg.LowFuelPct:
		return events.FleetIncident{
			TruckID: u.cand.TruckID,
			Region:  u.cand.Region,
			Kind:    "low_fuel",
			Detail:  "fuel below threshold",
			Time:    now,
		}, true
	case u.cand.Availability == model.Maintenance:
		return events.FleetIncident{
			TruckID: u.cand.TruckID,
			Region:  u.cand.Region,
			Kind:    "maintenance",
			Detail:  "unit flagged for maintenance",
			Time:    now,
		}, true
	}
	return events.FleetIncident{}, false
}

// RejectedReports returns how many malformed reports were discarded.
func (a *Aggregator) RejectedReports() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rejected
}
