// README: In-memory dispute store for tests and local development.
package dispute

import (
	"context"
	"sort"
	"sync"
	"time"

	"tripguard/internal/types"
)

type MemStore struct {
	mu       sync.Mutex
	disputes map[types.ID]*PaymentDispute
	escrows  map[types.ID]*PaymentEscrow
}

func NewMemStore() *MemStore {
	return &MemStore{
		disputes: map[types.ID]*PaymentDispute{},
		escrows:  map[types.ID]*PaymentEscrow{},
	}
}

func (s *MemStore) CreateWithEscrow(_ context.Context, d *PaymentDispute, esc *PaymentEscrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.disputes[d.ID] = &cp
	if esc != nil {
		ecp := *esc
		s.escrows[esc.ID] = &ecp
	}
	return nil
}

func (s *MemStore) GetDispute(_ context.Context, id types.ID) (*PaymentDispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemStore) GetEscrow(_ context.Context, id types.ID) (*PaymentEscrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	esc, ok := s.escrows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *esc
	return &cp, nil
}

func (s *MemStore) OpenByTrip(_ context.Context, tripID types.ID) (*PaymentDispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.disputes {
		if d.TripID != tripID {
			continue
		}
		switch d.Status {
		case StatusPending, StatusUnderReview, StatusEscalated:
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[id]
	if !ok {
		return ErrNotFound
	}
	if d.Status != from {
		return ErrConflict
	}
	d.Status = to
	d.UpdatedAt = at
	return nil
}

func (s *MemStore) Resolve(_ context.Context, r Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[r.DisputeID]
	if !ok {
		return ErrNotFound
	}
	if d.Status != r.FromStatus {
		return ErrConflict
	}
	if r.EscrowID != nil {
		esc, ok := s.escrows[*r.EscrowID]
		if !ok || esc.Status != EscrowHeld {
			return ErrConflict
		}
		esc.Status = r.EscrowStatus
		at := r.At
		esc.ReleasedAt = &at
		reason := r.ReleaseReason
		esc.ReleaseReason = &reason
	}
	d.Status = r.ToStatus
	resolution := r.Resolution
	d.Resolution = &resolution
	refund := r.RefundAmount
	d.RefundAmount = &refund
	d.UpdatedAt = r.At
	at := r.At
	d.ResolvedAt = &at
	return nil
}

func (s *MemStore) SetStrike(_ context.Context, id types.ID, strikeID types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[id]
	if !ok {
		return ErrNotFound
	}
	d.StrikeIssued = true
	d.StrikeID = &strikeID
	return nil
}

func (s *MemStore) ListByStatus(_ context.Context, status Status) ([]*PaymentDispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*PaymentDispute
	for _, d := range s.disputes {
		if d.Status == status {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
