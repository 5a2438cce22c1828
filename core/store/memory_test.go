package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agrilink/fleetcore/core/model"
)

func storedMission(id string, status model.Status) model.Mission {
	return model.Mission{
		ID:          id,
		ShipperID:   "farm-1",
		ReceiverID:  "coop-1",
		Product:     "maize",
		Quantity:    1500,
		Origin:      model.Location{Name: "Bresse"},
		Destination: model.Location{Name: "Lyon"},
		Status:      status,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func TestSaveAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	m := storedMission("m-1", model.StatusCreated)
	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.FindByID(ctx, "m-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Product != "maize" || got.Status != model.StatusCreated {
		t.Fatalf("unexpected mission: %+v", got)
	}
}

func TestFindMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.FindByID(context.Background(), "nope")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreDoesNotShareHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	m := storedMission("m-1", model.StatusAssigned)
	m.History = []model.HistoryEntry{{MissionID: "m-1", To: model.StatusAssigned}}
	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Mutating the caller's copy must not leak into the store.
	m.History[0].Actor = "tampered"
	got, _ := s.FindByID(ctx, "m-1")
	if got.History[0].Actor == "tampered" {
		t.Fatalf("store shares history slice with caller")
	}
}

func TestFindActiveFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, m := range []model.Mission{
		storedMission("m-1", model.StatusCreated),
		storedMission("m-2", model.StatusAssigned),
		storedMission("m-3", model.StatusConfirmed),
	} {
		if err := s.Save(ctx, m); err != nil {
			t.Fatalf("save %s: %v", m.ID, err)
		}
	}

	all, err := s.FindActive(ctx, Filter{})
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("terminal missions must be excluded, got %d", len(all))
	}
	if all[0].ID != "m-1" || all[1].ID != "m-2" {
		t.Fatalf("listings must be ordered by id, got %s, %s", all[0].ID, all[1].ID)
	}

	created := model.StatusCreated
	byStatus, err := s.FindActive(ctx, Filter{Status: &created})
	if err != nil {
		t.Fatalf("find by status: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].ID != "m-1" {
		t.Fatalf("status filter failed: %+v", byStatus)
	}

	byRegion, err := s.FindActive(ctx, Filter{Region: "Lyon"})
	if err != nil {
		t.Fatalf("find by region: %v", err)
	}
	if len(byRegion) != 2 {
		t.Fatalf("region filter failed, got %d", len(byRegion))
	}
}

func TestCountByStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, m := range []model.Mission{
		storedMission("m-1", model.StatusCreated),
		storedMission("m-2", model.StatusCreated),
		storedMission("m-3", model.StatusConfirmed),
	} {
		if err := s.Save(ctx, m); err != nil {
			t.Fatalf("save %s: %v", m.ID, err)
		}
	}
	counts, err := s.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[model.StatusCreated] != 2 || counts[model.StatusConfirmed] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
