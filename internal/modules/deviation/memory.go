// README: In-memory route deviation store for tests and local development.
package deviation

import (
	"context"
	"sync"
	"time"

	"tripguard/internal/types"
)

type MemStore struct {
	mu   sync.Mutex
	rows map[types.ID]*Deviation
}

func NewMemStore() *MemStore {
	return &MemStore{rows: map[types.ID]*Deviation{}}
}

func (s *MemStore) Create(_ context.Context, d *Deviation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[d.ID]; ok {
		return nil
	}
	cp := *d
	s.rows[d.ID] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Deviation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemStore) SetResponse(_ context.Context, id types.ID, resp RiderResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	d.RiderResponse = resp
	return nil
}

func (s *MemStore) SetAutoAlert(_ context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	d.AutoAlertSent = true
	return nil
}

func (s *MemStore) Resolve(_ context.Context, id types.ID, at time.Time, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	d.Resolved = true
	d.ResolvedAt = &at
	d.Duration = duration
	return nil
}

func (s *MemStore) ActiveByTrip(_ context.Context, tripID types.ID) (*Deviation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Deviation
	for _, d := range s.rows {
		if d.TripID == tripID && !d.Resolved {
			if latest == nil || d.Timestamp.After(latest.Timestamp) {
				latest = d
			}
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}
