package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agrilink/fleetcore/core/fleet"
	"github.com/agrilink/fleetcore/core/matching"
	"github.com/agrilink/fleetcore/core/mission"
	"github.com/agrilink/fleetcore/core/model"
	"github.com/agrilink/fleetcore/core/store"
	"github.com/agrilink/fleetcore/infra/logger"
	"github.com/agrilink/fleetcore/internal/eventbus"
)

type fixture struct {
	coord *Coordinator
	fleet *fleet.Aggregator
	bus   *eventbus.Broadcaster
	store *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ResetMetrics(nil)
	st := store.NewMemoryStore()
	agg := fleet.NewAggregator(fleet.Config{}, st, logger.NopLogger{})
	eng := matching.NewEngine(matching.Weights{}, logger.NopLogger{})
	bus := eventbus.New(64)
	t.Cleanup(bus.Close)
	coord, err := NewCoordinator(st, mission.New(), eng, agg, bus, nil, logger.NopLogger{}, time.Second)
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
	return &fixture{coord: coord, fleet: agg, bus: bus, store: st}
}

func (f *fixture) ingest(t *testing.T, truckID string, capacity float64) {
	t.Helper()
	err := f.fleet.Ingest(model.TelemetryReport{
		TruckID:      truckID,
		DriverID:     "d-" + truckID,
		FuelPct:      80,
		Availability: model.Available,
		CapacityKg:   capacity,
		Timestamp:    time.Now(),
	})
	if err != nil {
		t.Fatalf("ingest %s: %v", truckID, err)
	}
}

func validSpec() MissionSpec {
	return MissionSpec{
		ShipperID:   "farm-12",
		ReceiverID:  "coop-3",
		Product:     "rapeseed",
		Quantity:    3000,
		Unit:        "kg",
		Priority:    model.PriorityNormal,
		Origin:      model.Location{Name: "Berry"},
		Destination: model.Location{Name: "Tours"},
	}
}

func TestCreateMission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.bus.Subscribe("mission:created")

	m, err := f.coord.CreateMission(ctx, validSpec())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.ID == "" || m.Status != model.StatusCreated {
		t.Fatalf("unexpected mission: %+v", m)
	}
	stored, err := f.store.FindByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Product != "rapeseed" {
		t.Fatalf("mission not persisted: %+v", stored)
	}
	select {
	case ev := <-sub.Events():
		if ev.Topic() != "mission:created" {
			t.Fatalf("unexpected topic %s", ev.Topic())
		}
	case <-time.After(time.Second):
		t.Fatalf("no creation event published")
	}
}

func TestCreateMissionRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	spec := validSpec()
	spec.Quantity = 0
	_, err := f.coord.CreateMission(context.Background(), spec)
	var vErr model.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRequestAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, "t-1", 5000)
	f.ingest(t, "t-2", 1000) // too small for the load

	m, err := f.coord.CreateMission(ctx, validSpec())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := f.coord.RequestAssignment(ctx, m.ID, 5)
	if err != nil {
		t.Fatalf("request assignment: %v", err)
	}
	if len(res.Suggestions) != 1 || res.Suggestions[0].Candidate.TruckID != "t-1" {
		t.Fatalf("unexpected suggestions: %+v", res.Suggestions)
	}
	// Suggestions must not mutate anything.
	got, _ := f.coord.GetMission(ctx, m.ID)
	if got.Status != model.StatusCreated || got.DriverID != "" {
		t.Fatalf("suggestion mutated the mission: %+v", got)
	}
}

func TestRequestAssignmentUnknownMission(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.RequestAssignment(context.Background(), "nope", 5)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAssignCommitsCandidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, "t-1", 5000)

	m, err := f.coord.CreateMission(ctx, validSpec())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := f.coord.Assign(ctx, m.ID, "d-t-1", "t-1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.Status != model.StatusAssigned || got.DriverID != "d-t-1" || got.TruckID != "t-1" {
		t.Fatalf("unexpected mission after assign: %+v", got)
	}
	if avail := f.fleet.Candidates()[0].Availability; avail != model.EnRoute {
		t.Fatalf("committed unit should be en-route, got %s", avail)
	}
	// Retrying the same pairing is a no-op.
	again, err := f.coord.Assign(ctx, m.ID, "d-t-1", "t-1")
	if err != nil {
		t.Fatalf("retried assign: %v", err)
	}
	if len(again.History) != len(got.History) {
		t.Fatalf("retry must not grow history")
	}
}

func TestAssignConflictOnCommittedUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, "t-1", 5000)

	m1, _ := f.coord.CreateMission(ctx, validSpec())
	m2, _ := f.coord.CreateMission(ctx, validSpec())
	if _, err := f.coord.Assign(ctx, m1.ID, "d-t-1", "t-1"); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	_, err := f.coord.Assign(ctx, m2.ID, "d-t-1", "t-1")
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	// The losing mission is untouched.
	got, _ := f.coord.GetMission(ctx, m2.ID)
	if got.Status != model.StatusCreated {
		t.Fatalf("failed assign mutated the mission: %+v", got)
	}
}

func TestConcurrentAssignSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, "t-1", 5000)

	const n = 8
	missions := make([]string, n)
	for i := range missions {
		m, err := f.coord.CreateMission(ctx, validSpec())
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		missions[i] = m.ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.coord.Assign(ctx, missions[i], "d-t-1", "t-1")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, model.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestReassignReleasesPreviousUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, "t-1", 5000)
	f.ingest(t, "t-2", 5000)

	m, _ := f.coord.CreateMission(ctx, validSpec())
	if _, err := f.coord.Assign(ctx, m.ID, "d-t-1", "t-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	got, err := f.coord.Assign(ctx, m.ID, "d-t-2", "t-2")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if got.DriverID != "d-t-2" {
		t.Fatalf("reassign did not switch driver: %+v", got)
	}
	for _, c := range f.fleet.Candidates() {
		switch c.TruckID {
		case "t-1":
			if c.Availability != model.Available {
				t.Fatalf("previous unit not released: %s", c.Availability)
			}
		case "t-2":
			if c.Availability != model.EnRoute {
				t.Fatalf("new unit not committed: %s", c.Availability)
			}
		}
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, "t-1", 5000)

	m, _ := f.coord.CreateMission(ctx, validSpec())
	if _, err := f.coord.Assign(ctx, m.ID, "d-t-1", "t-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	steps := []struct {
		target   model.Status
		evidence string
	}{
		{model.StatusPickedUp, ""},
		{model.StatusInTransit, ""},
		{model.StatusDelivered, "photo-3"},
		{model.StatusConfirmed, ""},
	}
	for _, s := range steps {
		if _, err := f.coord.UpdateStatus(ctx, m.ID, s.target, "driver", s.evidence, ""); err != nil {
			t.Fatalf("update to %s: %v", s.target, err)
		}
	}
	got, _ := f.coord.GetMission(ctx, m.ID)
	if got.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", got.Status)
	}
	// The unit returns to the pool once the mission reaches a terminal
	// state.
	if avail := f.fleet.Candidates()[0].Availability; avail != model.Available {
		t.Fatalf("unit not released after completion: %s", avail)
	}
}

func TestUpdateStatusIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, "t-1", 5000)

	m, _ := f.coord.CreateMission(ctx, validSpec())
	if _, err := f.coord.Assign(ctx, m.ID, "d-t-1", "t-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	first, err := f.coord.UpdateStatus(ctx, m.ID, model.StatusPickedUp, "driver", "", "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	retry, err := f.coord.UpdateStatus(ctx, m.ID, model.StatusPickedUp, "driver", "", "")
	if err != nil {
		t.Fatalf("retried update: %v", err)
	}
	if len(retry.History) != len(first.History) {
		t.Fatalf("retry appended history")
	}
}

func TestUpdateStatusMissingEvidence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, "t-1", 5000)

	m, _ := f.coord.CreateMission(ctx, validSpec())
	f.coord.Assign(ctx, m.ID, "d-t-1", "t-1")
	f.coord.UpdateStatus(ctx, m.ID, model.StatusPickedUp, "driver", "", "")
	f.coord.UpdateStatus(ctx, m.ID, model.StatusInTransit, "driver", "", "")

	_, err := f.coord.UpdateStatus(ctx, m.ID, model.StatusDelivered, "driver", "", "")
	var eErr model.MissingEvidenceError
	if !errors.As(err, &eErr) {
		t.Fatalf("expected MissingEvidenceError, got %v", err)
	}
}

func TestAssignRejectedInLateStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, "t-1", 5000)
	f.ingest(t, "t-2", 5000)

	m, _ := f.coord.CreateMission(ctx, validSpec())
	f.coord.Assign(ctx, m.ID, "d-t-1", "t-1")
	f.coord.UpdateStatus(ctx, m.ID, model.StatusPickedUp, "driver", "", "")

	_, err := f.coord.Assign(ctx, m.ID, "d-t-2", "t-2")
	var sErr model.InvalidStateError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestListMissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m1, _ := f.coord.CreateMission(ctx, validSpec())
	spec := validSpec()
	spec.Origin = model.Location{Name: "Sologne"}
	if _, err := f.coord.CreateMission(ctx, spec); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := f.coord.ListMissions(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 missions, got %d", len(all))
	}
	byRegion, err := f.coord.ListMissions(ctx, store.Filter{Region: "Berry"})
	if err != nil {
		t.Fatalf("list by region: %v", err)
	}
	if len(byRegion) != 1 || byRegion[0].ID != m1.ID {
		t.Fatalf("region filter failed: %+v", byRegion)
	}
}
