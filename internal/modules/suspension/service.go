// README: Suspension manager: starting, lifting, expiring, acknowledgment.
package suspension

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tripguard/internal/config"
	"tripguard/internal/metrics"
	"tripguard/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid suspension state transition")
	ErrBadRequest   = errors.New("bad request")
)

type Service struct {
	store  Store
	policy config.Policy
	log    *logrus.Entry

	now func() time.Time
}

func NewService(store Store, pol config.Policy, log *logrus.Entry) *Service {
	return &Service{store: store, policy: pol, log: log, now: time.Now}
}

// Suspend puts a driver under suspension. Idempotent against the current
// state: an already suspended driver is not suspended twice, but a permanent
// request upgrades an active temporary suspension. A temporary request never
// downgrades a permanent one.
func (s *Service) Suspend(ctx context.Context, driverID types.ID, permanent bool, reason string, strikeIDs []types.ID) (types.ID, error) {
	if driverID == "" || reason == "" {
		return "", ErrBadRequest
	}

	current, err := s.store.ActiveByDriver(ctx, driverID)
	switch {
	case err == nil:
		if current.Type == TypePermanent || !permanent {
			return current.ID, nil
		}
		// Upgrade: close the temporary suspension and open a permanent one.
		if err := s.store.SetStatus(ctx, current.ID, StatusActive, StatusLifted, s.now(), &reason); err != nil {
			return "", err
		}
	case !errors.Is(err, ErrNotFound):
		return "", err
	}

	now := s.now()
	susp := &Suspension{
		ID:                     types.ID("susp-" + uuid.NewString()),
		DriverID:               driverID,
		Type:                   TypeTemporary,
		Reason:                 reason,
		StrikeIDs:              strikeIDs,
		StartedAt:              now,
		Status:                 StatusActive,
		AcknowledgmentRequired: true,
	}
	if permanent {
		susp.Type = TypePermanent
	} else {
		expires := now.Add(s.policy.Strikes.TempSuspension)
		susp.ExpiresAt = &expires
	}
	if err := s.store.Create(ctx, susp); err != nil {
		return "", err
	}
	metrics.SuspensionsStarted.WithLabelValues(string(susp.Type)).Inc()
	s.log.WithFields(logrus.Fields{
		"suspension_id": susp.ID,
		"driver_id":     driverID,
		"type":          susp.Type,
	}).Warn("driver suspended")
	return susp.ID, nil
}

// LiftAuto ends an active temporary suspension after a threshold
// re-evaluation. Permanent suspensions are untouched; those end only through
// Lift. No-op for drivers who are not suspended.
func (s *Service) LiftAuto(ctx context.Context, driverID types.ID, reason string) error {
	current, err := s.store.ActiveByDriver(ctx, driverID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.Type == TypePermanent {
		return nil
	}
	return s.store.SetStatus(ctx, current.ID, StatusActive, StatusLifted, s.now(), &reason)
}

type LiftCommand struct {
	SuspensionID types.ID
	Reason       string
	At           time.Time
}

// Lift is the explicit admin action. It is the only way a permanent
// suspension ends, and it always records a reason.
func (s *Service) Lift(ctx context.Context, cmd LiftCommand) error {
	if cmd.Reason == "" {
		return ErrBadRequest
	}
	susp, err := s.store.Get(ctx, cmd.SuspensionID)
	if err != nil {
		return err
	}
	if !CanTransition(susp.Status, StatusLifted) {
		return ErrInvalidState
	}
	return s.store.SetStatus(ctx, susp.ID, susp.Status, StatusLifted, cmd.At, &cmd.Reason)
}

// Acknowledge records the driver's in-app confirmation of the suspension.
func (s *Service) Acknowledge(ctx context.Context, suspensionID types.ID, at time.Time) error {
	return s.store.Acknowledge(ctx, suspensionID, at)
}

// DriverStatusFor derives the driver-level state from the latest suspension.
func (s *Service) DriverStatusFor(ctx context.Context, driverID types.ID) (DriverStatus, error) {
	current, err := s.store.ActiveByDriver(ctx, driverID)
	if errors.Is(err, ErrNotFound) {
		return DriverActive, nil
	}
	if err != nil {
		return "", err
	}
	if current.Type == TypePermanent {
		return DriverSuspendedPerm, nil
	}
	return DriverSuspendedTemp, nil
}

// IsEligible reports whether the driver may take trips: no active suspension,
// and any ended suspension requiring acknowledgment has been acknowledged.
func (s *Service) IsEligible(ctx context.Context, driverID types.ID) (bool, error) {
	latest, err := s.store.LatestByDriver(ctx, driverID)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if latest.Status == StatusActive {
		return false, nil
	}
	if latest.AcknowledgmentRequired && latest.AcknowledgedAt == nil {
		return false, nil
	}
	return true, nil
}

// ExpireDue transitions overdue temporary suspensions to expired.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	return s.store.ExpireDue(ctx, s.now())
}

// RunExpirySweep expires overdue temporary suspensions until ctx ends.
func (s *Service) RunExpirySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireDue(ctx)
			if err != nil {
				s.log.WithError(err).Error("suspension expiry sweep failed")
				continue
			}
			if n > 0 {
				s.log.WithField("count", n).Info("temporary suspensions expired")
			}
		}
	}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Suspension, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByDriver(ctx context.Context, driverID types.ID) ([]*Suspension, error) {
	return s.store.ListByDriver(ctx, driverID)
}
