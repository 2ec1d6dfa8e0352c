// README: In-memory safety profile store for tests and local development.
package profile

import (
	"context"
	"sync"

	"tripguard/internal/types"
)

type MemStore struct {
	mu   sync.Mutex
	rows map[types.ID]*DriverSafetyProfile
}

func NewMemStore() *MemStore {
	return &MemStore{rows: map[types.ID]*DriverSafetyProfile{}}
}

func (s *MemStore) Get(_ context.Context, driverID types.ID) (*DriverSafetyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[driverID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	cp.Badges = append([]string(nil), p.Badges...)
	return &cp, nil
}

func (s *MemStore) Save(_ context.Context, p *DriverSafetyProfile, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rows[p.DriverID]
	if ok && current.Version != expectedVersion {
		return ErrConflict
	}
	if !ok && expectedVersion != 0 {
		return ErrConflict
	}
	cp := *p
	cp.Badges = append([]string(nil), p.Badges...)
	s.rows[p.DriverID] = &cp
	return nil
}
