// README: Safety profile recomputation with optimistic concurrency.
package profile

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"tripguard/internal/modules/strike"
	"tripguard/internal/modules/suspension"
	"tripguard/internal/modules/violation"
	"tripguard/internal/types"
)

var ErrBadRequest = errors.New("bad request")

// maxRecomputeAttempts bounds CAS retries when concurrent recomputes race.
const maxRecomputeAttempts = 3

type StrikeSource interface {
	ActiveStrikes(ctx context.Context, driverID types.ID) ([]*strike.Strike, int, error)
}

type SuspensionSource interface {
	DriverStatusFor(ctx context.Context, driverID types.ID) (suspension.DriverStatus, error)
}

type ViolationSource interface {
	ListByDriver(ctx context.Context, driverID types.ID) ([]*violation.SafetyViolation, error)
}

type Service struct {
	store       Store
	strikes     StrikeSource
	suspensions SuspensionSource
	violations  ViolationSource
	log         *logrus.Entry

	now func() time.Time
}

func NewService(store Store, strikes StrikeSource, suspensions SuspensionSource, violations ViolationSource, log *logrus.Entry) *Service {
	return &Service{
		store:       store,
		strikes:     strikes,
		suspensions: suspensions,
		violations:  violations,
		log:         log,
		now:         time.Now,
	}
}

// Get returns the driver's profile, a fresh one if none is stored yet.
func (s *Service) Get(ctx context.Context, driverID types.ID) (*DriverSafetyProfile, error) {
	p, err := s.store.Get(ctx, driverID)
	if errors.Is(err, ErrNotFound) {
		return NewProfile(driverID), nil
	}
	return p, err
}

// Recompute regenerates the derived fields from the source-of-truth modules.
// It runs whenever a contributing record changes. The versioned save means
// two concurrent recomputes cannot double-apply: the loser retries against
// the fresh row.
func (s *Service) Recompute(ctx context.Context, driverID types.ID) (*DriverSafetyProfile, error) {
	return s.update(ctx, driverID, func(*DriverSafetyProfile) {})
}

// RecordRating folds one rider safety rating (1 to 5 stars) into the profile.
func (s *Service) RecordRating(ctx context.Context, driverID types.ID, stars int) (*DriverSafetyProfile, error) {
	if stars < 1 || stars > 5 {
		return nil, ErrBadRequest
	}
	return s.update(ctx, driverID, func(p *DriverSafetyProfile) {
		p.RatingDistribution[stars]++
		p.TotalSafetyRatings++
	})
}

// RecordTripOutcome advances or resets the safe-trip streak at trip end.
func (s *Service) RecordTripOutcome(ctx context.Context, driverID types.ID, clean bool) (*DriverSafetyProfile, error) {
	return s.update(ctx, driverID, func(p *DriverSafetyProfile) {
		if clean {
			p.SafeTripsStreak++
		} else {
			p.SafeTripsStreak = 0
		}
	})
}

func (s *Service) update(ctx context.Context, driverID types.ID, mutate func(*DriverSafetyProfile)) (*DriverSafetyProfile, error) {
	if driverID == "" {
		return nil, ErrBadRequest
	}
	var lastErr error
	for attempt := 0; attempt < maxRecomputeAttempts; attempt++ {
		p, err := s.Get(ctx, driverID)
		if err != nil {
			return nil, err
		}
		expected := p.Version

		mutate(p)
		if err := s.refresh(ctx, p); err != nil {
			return nil, err
		}
		p.Version = expected + 1
		p.UpdatedAt = s.now()

		if err := s.store.Save(ctx, p, expected); err != nil {
			if errors.Is(err, ErrConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return p, nil
	}
	return nil, lastErr
}

// refresh regenerates every derived field in place.
func (s *Service) refresh(ctx context.Context, p *DriverSafetyProfile) error {
	_, weighted, err := s.strikes.ActiveStrikes(ctx, p.DriverID)
	if err != nil {
		return err
	}
	p.ActiveStrikes = weighted

	status, err := s.suspensions.DriverStatusFor(ctx, p.DriverID)
	if err != nil {
		return err
	}
	p.SuspensionStatus = status

	violations, err := s.violations.ListByDriver(ctx, p.DriverID)
	if err != nil {
		return err
	}

	var speeding, routing int
	p.LastViolation = nil
	for _, v := range violations {
		if v.Status == violation.StatusDismissed {
			continue
		}
		if p.LastViolation == nil || v.Timestamp.After(*p.LastViolation) {
			ts := v.Timestamp
			p.LastViolation = &ts
		}
		if v.Status != violation.StatusConfirmed {
			continue
		}
		switch v.Type {
		case violation.TypeSpeeding:
			speeding++
		case violation.TypeRouteDeviation, violation.TypeEarlyCompletion:
			routing++
		}
	}
	p.SpeedComplianceScore = clampScore(100 - 10*float64(speeding))
	p.RouteAdherenceScore = clampScore(100 - 10*float64(routing))

	if p.TotalSafetyRatings > 0 {
		sum := 0
		for stars, n := range p.RatingDistribution {
			sum += stars * n
		}
		p.SafetyRating = float64(sum) / float64(p.TotalSafetyRatings)
	}

	p.Badges = p.Badges[:0]
	if len(violations) == 0 && weighted == 0 {
		p.Badges = append(p.Badges, "clean_record")
	}
	if p.SafeTripsStreak >= 100 {
		p.Badges = append(p.Badges, "safe_streak_100")
	}
	if p.SafetyRating >= 4.8 && p.TotalSafetyRatings >= 50 {
		p.Badges = append(p.Badges, "rider_trusted")
	}
	return nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
