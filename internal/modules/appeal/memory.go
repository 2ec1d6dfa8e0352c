// README: In-memory appeal store for tests and local development.
package appeal

import (
	"context"
	"sort"
	"sync"
	"time"

	"tripguard/internal/types"
)

type MemStore struct {
	mu   sync.Mutex
	rows map[types.ID]*Appeal
}

func NewMemStore() *MemStore {
	return &MemStore{rows: map[types.ID]*Appeal{}}
}

func (s *MemStore) Create(_ context.Context, a *Appeal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.rows[a.ID] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemStore) OpenByTarget(_ context.Context, target types.ID) (*Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rows {
		if a.Target() == target && (a.Status == StatusPending || a.Status == StatusUnderReview) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, reviewer types.ID, resolution *string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != from {
		return ErrConflict
	}
	a.Status = to
	a.ReviewedBy = &reviewer
	a.ReviewedAt = &at
	if resolution != nil {
		a.Resolution = resolution
	}
	return nil
}

func (s *MemStore) ListByDriver(_ context.Context, driverID types.ID) ([]*Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Appeal
	for _, a := range s.rows {
		if a.DriverID == driverID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (s *MemStore) ListByStatus(_ context.Context, status Status) ([]*Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Appeal
	for _, a := range s.rows {
		if a.Status == status {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}
