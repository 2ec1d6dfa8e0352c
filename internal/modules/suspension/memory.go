// README: In-memory suspension store for tests and local development.
package suspension

import (
	"context"
	"sort"
	"sync"
	"time"

	"tripguard/internal/types"
)

type MemStore struct {
	mu   sync.Mutex
	rows map[types.ID]*Suspension
}

func NewMemStore() *MemStore {
	return &MemStore{rows: map[types.ID]*Suspension{}}
}

func (s *MemStore) Create(_ context.Context, susp *Suspension) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *susp
	s.rows[susp.ID] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Suspension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	susp, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *susp
	return &cp, nil
}

func (s *MemStore) ActiveByDriver(_ context.Context, driverID types.ID) (*Suspension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Suspension
	for _, susp := range s.rows {
		if susp.DriverID == driverID && susp.Status == StatusActive {
			if latest == nil || susp.StartedAt.After(latest.StartedAt) {
				latest = susp
			}
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemStore) LatestByDriver(_ context.Context, driverID types.ID) (*Suspension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Suspension
	for _, susp := range s.rows {
		if susp.DriverID == driverID {
			if latest == nil || susp.StartedAt.After(latest.StartedAt) {
				latest = susp
			}
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemStore) ListByDriver(_ context.Context, driverID types.ID) ([]*Suspension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Suspension
	for _, susp := range s.rows {
		if susp.DriverID == driverID {
			cp := *susp
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *MemStore) SetStatus(_ context.Context, id types.ID, from, to Status, at time.Time, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	susp, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if susp.Status != from {
		return ErrConflict
	}
	susp.Status = to
	susp.LiftedAt = &at
	if reason != nil {
		susp.LiftedReason = reason
	}
	return nil
}

func (s *MemStore) Acknowledge(_ context.Context, id types.ID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	susp, ok := s.rows[id]
	if !ok || susp.AcknowledgedAt != nil {
		return ErrNotFound
	}
	susp.AcknowledgedAt = &at
	return nil
}

func (s *MemStore) ExpireDue(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, susp := range s.rows {
		if susp.Status == StatusActive && susp.Type == TypeTemporary &&
			susp.ExpiresAt != nil && !now.Before(*susp.ExpiresAt) {
			susp.Status = StatusExpired
			at := now
			susp.LiftedAt = &at
			n++
		}
	}
	return n, nil
}
