// Package store defines the durable mission record contract. The backing
// technology is an adapter concern; the core only depends on this
// interface.
package store

import (
	"context"

	"github.com/agrilink/fleetcore/core/model"
)

// Filter narrows FindActive results. Zero values match everything.
type Filter struct {
	Status *model.Status
	// Region matches the origin or destination name.
	Region string
}

// MissionStore persists missions and their append-only history. Terminal
// missions are archived, never deleted.
type MissionStore interface {
	Save(ctx context.Context, m model.Mission) error
	FindByID(ctx context.Context, id string) (model.Mission, error)
	AppendHistory(ctx context.Context, id string, entry model.HistoryEntry) error
	FindActive(ctx context.Context, f Filter) ([]model.Mission, error)
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
	Close() error
}
