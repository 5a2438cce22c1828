package store

import (
	"context"
	"sort"
	"sync"

	"github.com/agrilink/fleetcore/core/model"
)

// MemoryStore keeps missions in process memory. Missions are deep-copied
// on the way in and out so callers never share history slices with the
// store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]model.Mission
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]model.Mission{}}
}

// Save upserts the mission record.
func (s *MemoryStore) Save(_ context.Context, m model.Mission) error {
	s.mu.Lock()
	s.data[m.ID] = m.Clone()
	s.mu.Unlock()
	return nil
}

// FindByID returns the mission or model.ErrNotFound.
func (s *MemoryStore) FindByID(_ context.Context, id string) (model.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.data[id]
	if !ok {
		return model.Mission{}, model.ErrNotFound
	}
	return m.Clone(), nil
}

// AppendHistory appends the entry to the mission's history log.
func (s *MemoryStore) AppendHistory(_ context.Context, id string, entry model.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.data[id]
	if !ok {
		return model.ErrNotFound
	}
	m.History = append(m.History, entry)
	s.data[id] = m
	return nil
}

// FindActive returns non-terminal missions matching the filter, ordered
// by id for stable listings.
func (s *MemoryStore) FindActive(_ context.Context, f Filter) ([]model.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Mission
	for _, m := range s.data {
		if m.Status.Terminal() {
			continue
		}
		if f.Status != nil && m.Status != *f.Status {
			continue
		}
		if f.Region != "" && m.Origin.Name != f.Region && m.Destination.Name != f.Region {
			continue
		}
		res = append(res, m.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// CountByStatus returns the number of missions per status, archived ones
// included.
func (s *MemoryStore) CountByStatus(_ context.Context) (map[model.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[model.Status]int)
	for _, m := range s.data {
		counts[m.Status]++
	}
	return counts, nil
}

// Close implements MissionStore; a memory store holds no resources.
func (s *MemoryStore) Close() error { return nil }
