// README: In-memory emergency alert store for tests and local development.
package emergency

import (
	"context"
	"sort"
	"sync"
	"time"

	"tripguard/internal/types"
)

type MemStore struct {
	mu   sync.Mutex
	rows map[types.ID]*EmergencyAlert
}

func NewMemStore() *MemStore {
	return &MemStore{rows: map[types.ID]*EmergencyAlert{}}
}

func (s *MemStore) Create(_ context.Context, alert *EmergencyAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *alert
	s.rows[alert.ID] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*EmergencyAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *alert
	return &cp, nil
}

func (s *MemStore) SetContactsNotified(_ context.Context, id types.ID, contacts []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	alert.ContactsNotified = append([]string(nil), contacts...)
	return nil
}

func (s *MemStore) SetAuthoritiesContacted(_ context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	alert.AuthoritiesContacted = true
	return nil
}

func (s *MemStore) Resolve(_ context.Context, id types.ID, at time.Time, resolution string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.rows[id]
	if !ok || alert.Resolved {
		return ErrNotFound
	}
	alert.Resolved = true
	alert.ResolvedAt = &at
	alert.Resolution = &resolution
	return nil
}

func (s *MemStore) ListOpen(_ context.Context) ([]*EmergencyAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*EmergencyAlert
	for _, alert := range s.rows {
		if !alert.Resolved {
			cp := *alert
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemStore) ListByTrip(_ context.Context, tripID types.ID) ([]*EmergencyAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*EmergencyAlert
	for _, alert := range s.rows {
		if alert.TripID == tripID {
			cp := *alert
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
