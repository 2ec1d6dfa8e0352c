// README: Early completion detection and rider confirmation flow.
package earlycomp

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"tripguard/internal/config"
	"tripguard/internal/geo"
	"tripguard/internal/types"
)

var (
	ErrInvalidState = errors.New("early completion record in invalid state")
	ErrBadRequest   = errors.New("bad request")
)

type Service struct {
	store  Store
	policy config.Policy
	log    *logrus.Entry

	// Distance measures completion location to destination. Overridable so
	// tests can use planar coordinates.
	Distance func(a, b types.Point) float64
}

func NewService(store Store, pol config.Policy, log *logrus.Entry) *Service {
	return &Service{
		store:    store,
		policy:   pol,
		log:      log,
		Distance: geo.HaversineMeters,
	}
}

type CheckCommand struct {
	TripID             types.ID
	DriverID           types.ID
	Destination        types.Point
	CompletionLocation types.Point
	CompletedAt        time.Time
}

// CheckCompletion runs once at trip-completion time. Within tolerance it
// returns (nil, nil). Beyond tolerance it opens a held record and returns it;
// the caller routes the payment hold and the rider prompt. Retried checks for
// the same trip are idempotent.
func (s *Service) CheckCompletion(ctx context.Context, cmd CheckCommand) (*EarlyCompletion, error) {
	if cmd.TripID == "" {
		return nil, ErrBadRequest
	}
	dist := s.Distance(cmd.CompletionLocation, cmd.Destination)
	if dist <= s.policy.EarlyCompletion.ToleranceMeters {
		return nil, nil
	}

	ec := &EarlyCompletion{
		ID:                      RecordID(cmd.TripID),
		TripID:                  cmd.TripID,
		DriverID:                cmd.DriverID,
		Timestamp:               cmd.CompletedAt,
		DestinationLocation:     cmd.Destination,
		ActualLocation:          cmd.CompletionLocation,
		DistanceFromDestination: dist,
		RiderResponse:           ResponsePending,
		PaymentHeld:             true,
	}
	if err := s.store.Create(ctx, ec); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"trip_id":    cmd.TripID,
		"distance_m": dist,
	}).Warn("trip completed away from destination, payment held")
	return s.store.Get(ctx, ec.ID)
}

type RespondCommand struct {
	ID       types.ID
	Response Response
	At       time.Time
}

// Respond applies the rider's answer. An okay resolves the record and
// releases the hold. An SOS keeps the hold and flags the record; the caller
// escalates to the emergency dispatcher. Anything else is rejected.
func (s *Service) Respond(ctx context.Context, cmd RespondCommand) (*EarlyCompletion, error) {
	ec, err := s.store.Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	if ec.Resolved {
		return nil, ErrInvalidState
	}

	switch cmd.Response {
	case ResponseOkay:
		if err := s.store.SetResponse(ctx, ec.ID, ResponseOkay); err != nil {
			return nil, err
		}
		if err := s.store.Resolve(ctx, ec.ID, cmd.At, true); err != nil {
			return nil, err
		}
	case ResponseSOS:
		if err := s.store.SetResponse(ctx, ec.ID, ResponseSOS); err != nil {
			return nil, err
		}
	default:
		return nil, ErrBadRequest
	}
	return s.store.Get(ctx, ec.ID)
}

type ResolveCommand struct {
	ID types.ID
	// ReleaseHold releases the held payment; false keeps the hold for the
	// dispute flow to settle.
	ReleaseHold bool
	At          time.Time
}

// ResolveManually closes a record from the review queue. This is the only
// path that resolves a no_response record.
func (s *Service) ResolveManually(ctx context.Context, cmd ResolveCommand) error {
	ec, err := s.store.Get(ctx, cmd.ID)
	if err != nil {
		return err
	}
	if ec.Resolved {
		return ErrInvalidState
	}
	return s.store.Resolve(ctx, ec.ID, cmd.At, cmd.ReleaseHold)
}

// ExpireStale marks every unanswered record past the response timeout as
// no_response and queues it for manual review. The hold stays in place.
// Returns the records it escalated so the caller can raise alerts.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) ([]*EarlyCompletion, error) {
	cutoff := now.Add(-s.policy.EarlyCompletion.ResponseTimeout)
	stale, err := s.store.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	var escalated []*EarlyCompletion
	for _, ec := range stale {
		if err := s.store.SetResponse(ctx, ec.ID, ResponseNoResponse); err != nil {
			return escalated, err
		}
		if err := s.store.MarkManualReview(ctx, ec.ID); err != nil {
			return escalated, err
		}
		s.log.WithField("trip_id", ec.TripID).Warn("early completion unanswered, queued for manual review")
		ec.RiderResponse = ResponseNoResponse
		ec.ManualReview = true
		escalated = append(escalated, ec)
	}
	return escalated, nil
}

// RunTimeoutSweep periodically escalates unanswered records until ctx ends.
func (s *Service) RunTimeoutSweep(ctx context.Context, interval time.Duration, onEscalated func(context.Context, *EarlyCompletion)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			escalated, err := s.ExpireStale(ctx, time.Now())
			if err != nil {
				s.log.WithError(err).Error("early completion timeout sweep failed")
				continue
			}
			if onEscalated != nil {
				for _, ec := range escalated {
					onEscalated(ctx, ec)
				}
			}
		}
	}
}
