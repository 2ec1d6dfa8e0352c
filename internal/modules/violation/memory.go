// README: In-memory safety violation store for tests and local development.
package violation

import (
	"context"
	"sort"
	"sync"
	"time"

	"tripguard/internal/types"
)

type MemStore struct {
	mu   sync.Mutex
	rows map[types.ID]*SafetyViolation
}

func NewMemStore() *MemStore {
	return &MemStore{rows: map[types.ID]*SafetyViolation{}}
}

func (s *MemStore) Create(_ context.Context, v *SafetyViolation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[v.ID]; ok {
		return nil
	}
	cp := *v
	s.rows[v.ID] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*SafetyViolation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *MemStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, reviewer types.ID, resolution *string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if v.Status != from {
		return ErrConflict
	}
	v.Status = to
	v.ReviewedBy = &reviewer
	v.ReviewedAt = &at
	if resolution != nil {
		v.Resolution = resolution
	}
	return nil
}

func (s *MemStore) SetSummary(_ context.Context, id types.ID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	v.Summary = summary
	return nil
}

func (s *MemStore) SetStrike(_ context.Context, id types.ID, strikeID types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	v.StrikeIssued = true
	v.StrikeID = &strikeID
	return nil
}

func (s *MemStore) ListByDriver(_ context.Context, driverID types.ID) ([]*SafetyViolation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*SafetyViolation
	for _, v := range s.rows {
		if v.DriverID == driverID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *MemStore) ListByStatus(_ context.Context, status Status) ([]*SafetyViolation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*SafetyViolation
	for _, v := range s.rows {
		if v.Status == status {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
