// README: In-memory strike store for tests and local development.
package strike

import (
	"context"
	"sort"
	"sync"
	"time"

	"tripguard/internal/types"
)

type MemStore struct {
	mu   sync.Mutex
	rows map[types.ID]*Strike
}

func NewMemStore() *MemStore {
	return &MemStore{rows: map[types.ID]*Strike{}}
}

func (s *MemStore) Create(_ context.Context, st *Strike) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.rows[st.ID] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Strike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *MemStore) ByViolation(_ context.Context, violationID types.ID) (*Strike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.rows {
		if st.ViolationID != nil && *st.ViolationID == violationID {
			cp := *st
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) ListByDriver(_ context.Context, driverID types.ID) ([]*Strike, error) {
	return s.listByDriver(driverID, false), nil
}

func (s *MemStore) ListActiveByDriver(_ context.Context, driverID types.ID) ([]*Strike, error) {
	return s.listByDriver(driverID, true), nil
}

func (s *MemStore) listByDriver(driverID types.ID, activeOnly bool) []*Strike {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Strike
	for _, st := range s.rows {
		if st.DriverID != driverID {
			continue
		}
		if activeOnly && st.Status != StatusActive {
			continue
		}
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

func (s *MemStore) SetStatus(_ context.Context, id types.ID, from, to Status, appealID *types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if st.Status != from {
		return ErrConflict
	}
	st.Status = to
	if appealID != nil {
		st.AppealID = appealID
	}
	return nil
}

func (s *MemStore) ExpireDue(_ context.Context, now time.Time) ([]types.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[types.ID]bool{}
	var drivers []types.ID
	for _, st := range s.rows {
		if st.Status == StatusActive && !now.Before(st.ExpiresAt) {
			st.Status = StatusExpired
			if !seen[st.DriverID] {
				seen[st.DriverID] = true
				drivers = append(drivers, st.DriverID)
			}
		}
	}
	return drivers, nil
}
