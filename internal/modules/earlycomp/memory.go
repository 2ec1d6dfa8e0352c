// README: In-memory early completion store for tests and local development.
package earlycomp

import (
	"context"
	"sync"
	"time"

	"tripguard/internal/types"
)

type MemStore struct {
	mu   sync.Mutex
	rows map[types.ID]*EarlyCompletion
}

func NewMemStore() *MemStore {
	return &MemStore{rows: map[types.ID]*EarlyCompletion{}}
}

func (s *MemStore) Create(_ context.Context, ec *EarlyCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[ec.ID]; ok {
		return nil
	}
	cp := *ec
	s.rows[ec.ID] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*EarlyCompletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ec, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ec
	return &cp, nil
}

func (s *MemStore) ByTrip(_ context.Context, tripID types.ID) (*EarlyCompletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ec := range s.rows {
		if ec.TripID == tripID {
			cp := *ec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) SetResponse(_ context.Context, id types.ID, resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ec, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	ec.RiderResponse = resp
	return nil
}

func (s *MemStore) MarkManualReview(_ context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ec, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	ec.ManualReview = true
	return nil
}

func (s *MemStore) Resolve(_ context.Context, id types.ID, at time.Time, releaseHold bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ec, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	ec.Resolved = true
	ec.ResolvedAt = &at
	if releaseHold {
		ec.PaymentHeld = false
	}
	return nil
}

func (s *MemStore) ListPendingBefore(_ context.Context, cutoff time.Time) ([]*EarlyCompletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*EarlyCompletion
	for _, ec := range s.rows {
		if ec.RiderResponse == ResponsePending && !ec.Resolved && ec.Timestamp.Before(cutoff) {
			cp := *ec
			out = append(out, &cp)
		}
	}
	return out, nil
}
