// README: In-memory speed violation store for tests and local development.
package speed

import (
	"context"
	"sort"
	"sync"

	"tripguard/internal/types"
)

type MemStore struct {
	mu   sync.Mutex
	rows map[types.ID]*Violation
}

func NewMemStore() *MemStore {
	return &MemStore{rows: map[types.ID]*Violation{}}
}

func (s *MemStore) Create(_ context.Context, v *Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[v.ID]; ok {
		return nil // idempotent on episode ID
	}
	cp := *v
	s.rows[v.ID] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *MemStore) ListByTrip(_ context.Context, tripID types.ID) ([]*Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Violation
	for _, v := range s.rows {
		if v.TripID == tripID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}
