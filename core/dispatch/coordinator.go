// Package dispatch orchestrates mission creation, candidate assignment
// and status updates, combining the state machine, the matching engine
// and the fleet snapshot behind the external-facing API.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agrilink/fleetcore/core/events"
	"github.com/agrilink/fleetcore/core/fleet"
	"github.com/agrilink/fleetcore/core/logger"
	"github.com/agrilink/fleetcore/core/matching"
	"github.com/agrilink/fleetcore/core/metrics"
	"github.com/agrilink/fleetcore/core/mission"
	"github.com/agrilink/fleetcore/core/model"
	"github.com/agrilink/fleetcore/core/store"
	"github.com/agrilink/fleetcore/internal/eventbus"
)

// MissionSpec is the input for creating a mission.
type MissionSpec struct {
	ShipperID    string
	ReceiverID   string
	Product      string
	Quantity     float64
	Unit         string
	Priority     model.Priority
	Origin       model.Location
	Destination  model.Location
	RequiredTags []string
}

// Coordinator is the single entry point for dispatch operations. Requests
// for the same mission are serialized through a per-mission lock while
// unrelated missions proceed in parallel.
type Coordinator struct {
	store     store.MissionStore
	machine   *mission.Machine
	engine    *matching.Engine
	fleet     *fleet.Aggregator
	bus       *eventbus.Broadcaster
	sink      metrics.MetricsSink
	log       logger.Logger
	matchWait time.Duration
	locks     *keyedLocks
	now       func() time.Time
	newID     func() string
}

// NewCoordinator wires a Coordinator. The sink may be nil; matchTimeout
// bounds calls into the matching engine and defaults to two seconds.
func NewCoordinator(st store.MissionStore, sm *mission.Machine, eng *matching.Engine, fl *fleet.Aggregator, bus *eventbus.Broadcaster, sink metrics.MetricsSink, log logger.Logger, matchTimeout time.Duration) (*Coordinator, error) {
	if st == nil || sm == nil || eng == nil || fl == nil || bus == nil {
		return nil, fmt.Errorf("dispatch: nil dependency provided to NewCoordinator")
	}
	if matchTimeout <= 0 {
		matchTimeout = 2 * time.Second
	}
	return &Coordinator{
		store:     st,
		machine:   sm,
		engine:    eng,
		fleet:     fl,
		bus:       bus,
		sink:      sink,
		log:       log,
		matchWait: matchTimeout,
		locks:     newKeyedLocks(),
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// CreateMission validates the spec, persists the mission in CREATED state
// and publishes a mission created event.
func (c *Coordinator) CreateMission(ctx context.Context, spec MissionSpec) (model.Mission, error) {
	now := c.now()
	m := model.Mission{
		ID:           c.newID(),
		ShipperID:    spec.ShipperID,
		ReceiverID:   spec.ReceiverID,
		Product:      spec.Product,
		Quantity:     spec.Quantity,
		Unit:         spec.Unit,
		Priority:     spec.Priority,
		Origin:       spec.Origin,
		Destination:  spec.Destination,
		RequiredTags: append([]string(nil), spec.RequiredTags...),
		Status:       model.StatusCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.Validate(); err != nil {
		return model.Mission{}, err
	}
	if err := c.store.Save(ctx, m); err != nil {
		return model.Mission{}, c.internal(m.ID, "persist mission", err)
	}
	missionsCreated.Inc()
	c.bus.Publish(events.MissionCreated{Mission: m.Clone(), Time: now})
	c.log.Infof("mission %s created (%s, %.0f %s)", m.ID, m.Product, m.Quantity, m.Unit)
	return m, nil
}

// RequestAssignment loads the mission and returns ranked candidate
// suggestions. It mutates nothing; committing a candidate is the explicit
// Assign operation.
func (c *Coordinator) RequestAssignment(ctx context.Context, missionID string, k int) (matching.Result, error) {
	m, err := c.store.FindByID(ctx, missionID)
	if err != nil {
		return matching.Result{}, err
	}
	if m.Status != model.StatusCreated && m.Status != model.StatusAssigned {
		return matching.Result{}, model.InvalidStateError{MissionID: m.ID, Status: m.Status, Op: "request assignment"}
	}
	return c.suggest(ctx, m, k)
}

// suggest runs the matching engine under the configured time budget. A
// slow scorer is a bug, not a legitimate wait.
func (c *Coordinator) suggest(ctx context.Context, m model.Mission, k int) (matching.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.matchWait)
	defer cancel()
	start := c.now()
	res, err := c.engine.Suggest(ctx, m, c.fleet.Candidates(), k)
	matchingLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return matching.Result{}, fmt.Errorf("matching mission %s: %w", m.ID, model.ErrTimeout)
		}
		return matching.Result{}, err
	}
	return res, nil
}

// Assign commits the candidate to the mission. The candidate reservation
// and the mission update succeed or fail together: the reservation is
// taken first and rolled back if the mission cannot be persisted, so a
// mission is never ASSIGNED while its unit still looks available, and a
// unit is never booked twice.
func (c *Coordinator) Assign(ctx context.Context, missionID, driverID, truckID string) (model.Mission, error) {
	unlock := c.locks.lock(missionID)
	defer unlock()

	m, err := c.store.FindByID(ctx, missionID)
	if err != nil {
		return model.Mission{}, err
	}
	if m.Status != model.StatusCreated && m.Status != model.StatusAssigned {
		return model.Mission{}, model.InvalidStateError{MissionID: m.ID, Status: m.Status, Op: "assign"}
	}
	if m.Status == model.StatusAssigned && m.DriverID == driverID && m.TruckID == truckID {
		// Retried assign of the same pairing; idempotent no-op.
		return m, nil
	}

	if err := c.fleet.Reserve(driverID, truckID); err != nil {
		if errors.Is(err, model.ErrConflict) {
			assignConflicts.Inc()
		}
		return model.Mission{}, err
	}

	prevDriver, prevTruck := m.DriverID, m.TruckID
	reassign := m.Status == model.StatusAssigned
	m.DriverID = driverID
	m.TruckID = truckID
	var ev *events.MissionStatusChanged
	if !reassign {
		ev, err = c.machine.Transition(&m, model.StatusAssigned, "dispatcher", "", "")
		if err != nil {
			c.fleet.Release(driverID, truckID)
			return model.Mission{}, err
		}
	} else {
		m.UpdatedAt = c.now()
	}
	if err := c.store.Save(ctx, m); err != nil {
		c.fleet.Release(driverID, truckID)
		return model.Mission{}, c.internal(m.ID, "persist assignment", err)
	}
	if reassign && prevDriver != "" {
		// The previous unit only returns to the pool once the new
		// assignment is durable.
		c.fleet.Release(prevDriver, prevTruck)
	}

	now := c.now()
	if ev != nil {
		transitions.WithLabelValues(ev.To.String()).Inc()
		c.bus.Publish(*ev)
	}
	c.bus.Publish(events.MissionAssigned{MissionID: m.ID, DriverID: driverID, TruckID: truckID, Time: now})
	c.recordAssignment(m, driverID, truckID, now)
	c.log.Infof("mission %s assigned to driver %s / truck %s", m.ID, driverID, truckID)
	return m, nil
}

// UpdateStatus delegates to the state machine and persists the result.
// Re-applying the transition the mission is already in returns the
// current state without error or side effects.
func (c *Coordinator) UpdateStatus(ctx context.Context, missionID string, target model.Status, actor, evidence, notes string) (model.Mission, error) {
	unlock := c.locks.lock(missionID)
	defer unlock()

	m, err := c.store.FindByID(ctx, missionID)
	if err != nil {
		return model.Mission{}, err
	}
	ev, err := c.machine.Transition(&m, target, actor, evidence, notes)
	if err != nil {
		return model.Mission{}, err
	}
	if ev == nil {
		return m, nil
	}
	if err := c.store.Save(ctx, m); err != nil {
		return model.Mission{}, c.internal(m.ID, "persist transition", err)
	}
	if target.Terminal() && m.DriverID != "" {
		c.fleet.Release(m.DriverID, m.TruckID)
	}
	transitions.WithLabelValues(target.String()).Inc()
	c.bus.Publish(*ev)
	c.recordTransition(*ev)
	c.log.Infof("mission %s: %s -> %s by %s", m.ID, ev.From, ev.To, actor)
	return m, nil
}

// ListMissions returns active missions matching the filter.
func (c *Coordinator) ListMissions(ctx context.Context, f store.Filter) ([]model.Mission, error) {
	return c.store.FindActive(ctx, f)
}

// GetMission returns one mission by id.
func (c *Coordinator) GetMission(ctx context.Context, id string) (model.Mission, error) {
	return c.store.FindByID(ctx, id)
}

func (c *Coordinator) recordAssignment(m model.Mission, driverID, truckID string, now time.Time) {
	if c.sink == nil {
		return
	}
	rec := metrics.AssignmentRecord{
		MissionID: m.ID,
		DriverID:  driverID,
		TruckID:   truckID,
		Priority:  m.Priority,
		Time:      now,
	}
	if err := c.sink.RecordAssignment([]metrics.AssignmentRecord{rec}); err != nil {
		c.log.Errorf("assignment metrics error: %v", err)
	}
}

func (c *Coordinator) recordTransition(ev events.MissionStatusChanged) {
	tr, ok := c.sink.(metrics.TransitionRecorder)
	if !ok {
		return
	}
	rec := metrics.TransitionRecord{
		MissionID: ev.MissionID,
		From:      ev.From,
		To:        ev.To,
		Actor:     ev.Actor,
		Time:      ev.Time,
	}
	if err := tr.RecordTransition(rec); err != nil {
		c.log.Errorf("transition metrics error: %v", err)
	}
}

// internal logs the full failure with mission correlation and returns an
// opaque error so storage details never leak to callers.
func (c *Coordinator) internal(missionID, op string, err error) error {
	c.log.Errorf("mission %s: %s: %v", missionID, op, err)
	return fmt.Errorf("mission %s: %w", missionID, model.ErrInternal)
}
