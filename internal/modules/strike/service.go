// README: Strike engine: issuance, weighted threshold evaluation, expiry.
package strike

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tripguard/internal/config"
	"tripguard/internal/metrics"
	"tripguard/internal/modules/violation"
	"tripguard/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid strike state transition")
	ErrBadRequest   = errors.New("bad request")
)

// Suspender is the port to the suspension manager. LiftAuto lifts a
// threshold-based suspension when a driver drops back below the line; it is a
// no-op for drivers who are not suspended.
type Suspender interface {
	Suspend(ctx context.Context, driverID types.ID, permanent bool, reason string, strikeIDs []types.ID) (types.ID, error)
	LiftAuto(ctx context.Context, driverID types.ID, reason string) error
}

type Service struct {
	store     Store
	suspender Suspender
	policy    config.Policy
	log       *logrus.Entry

	// now is swapped in tests to exercise expiry windows.
	now func() time.Time
}

func NewService(store Store, suspender Suspender, pol config.Policy, log *logrus.Entry) *Service {
	return &Service{store: store, suspender: suspender, policy: pol, log: log, now: time.Now}
}

type IssueCommand struct {
	DriverID    types.ID
	TripID      types.ID
	Type        string
	Reason      string
	Severity    string
	ViolationID *types.ID
}

// Issue creates an active strike and re-evaluates the driver. When the
// command carries a violation ID, issuance is deduplicated on it, so a
// retried confirmation never yields a second strike.
func (s *Service) Issue(ctx context.Context, cmd IssueCommand) (*Strike, error) {
	if cmd.DriverID == "" || cmd.Reason == "" {
		return nil, ErrBadRequest
	}
	if cmd.ViolationID != nil {
		if existing, err := s.store.ByViolation(ctx, *cmd.ViolationID); err == nil {
			return existing, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	now := s.now()
	st := &Strike{
		ID:          types.ID("strike-" + uuid.NewString()),
		DriverID:    cmd.DriverID,
		TripID:      cmd.TripID,
		Type:        cmd.Type,
		Reason:      cmd.Reason,
		Severity:    cmd.Severity,
		ViolationID: cmd.ViolationID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.policy.Strikes.Expiry),
		Status:      StatusActive,
	}
	if err := s.store.Create(ctx, st); err != nil {
		return nil, err
	}
	metrics.StrikesIssued.Inc()
	s.log.WithFields(logrus.Fields{
		"strike_id": st.ID,
		"driver_id": st.DriverID,
		"severity":  st.Severity,
	}).Info("strike issued")

	if err := s.EvaluateDriver(ctx, cmd.DriverID); err != nil {
		return nil, err
	}
	return st, nil
}

// IssueForViolation adapts a confirmed safety violation into a strike.
func (s *Service) IssueForViolation(ctx context.Context, v *violation.SafetyViolation) (types.ID, error) {
	id := v.ID
	st, err := s.Issue(ctx, IssueCommand{
		DriverID:    v.DriverID,
		TripID:      v.TripID,
		Type:        string(v.Type),
		Reason:      v.Description,
		Severity:    string(v.Severity),
		ViolationID: &id,
	})
	if err != nil {
		return "", err
	}
	return st.ID, nil
}

// ActiveStrikes returns the strikes that currently count toward thresholds
// and their weighted total. Strikes past their expiry are excluded even if
// the sweep has not flipped them yet.
func (s *Service) ActiveStrikes(ctx context.Context, driverID types.ID) ([]*Strike, int, error) {
	all, err := s.store.ListActiveByDriver(ctx, driverID)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	var active []*Strike
	weighted := 0
	for _, st := range all {
		if !st.ActiveAt(now) {
			continue
		}
		active = append(active, st)
		weighted += s.weight(st)
	}
	return active, weighted, nil
}

// EvaluateDriver recomputes the weighted active-strike count and drives the
// suspension manager across thresholds in both directions.
func (s *Service) EvaluateDriver(ctx context.Context, driverID types.ID) error {
	active, weighted, err := s.ActiveStrikes(ctx, driverID)
	if err != nil {
		return err
	}

	switch {
	case weighted >= s.policy.Strikes.PermanentThreshold:
		ids := strikeIDs(active)
		if _, err := s.suspender.Suspend(ctx, driverID, true, "active strike count reached permanent threshold", ids); err != nil {
			return err
		}
	case weighted >= s.policy.Strikes.SuspendThreshold:
		ids := strikeIDs(active)
		if _, err := s.suspender.Suspend(ctx, driverID, false, "active strike count reached suspension threshold", ids); err != nil {
			return err
		}
	default:
		if err := s.suspender.LiftAuto(ctx, driverID, "active strike count dropped below threshold"); err != nil {
			return err
		}
	}
	return nil
}

// MarkAppealed flips a strike to appealed after an approved appeal and
// re-evaluates the driver, which can lift the suspension it caused.
func (s *Service) MarkAppealed(ctx context.Context, strikeID, appealID types.ID) error {
	return s.retire(ctx, strikeID, StatusAppealed, &appealID)
}

// Remove is the admin path for striking a record from the books.
func (s *Service) Remove(ctx context.Context, strikeID types.ID) error {
	return s.retire(ctx, strikeID, StatusRemoved, nil)
}

func (s *Service) retire(ctx context.Context, strikeID types.ID, to Status, appealID *types.ID) error {
	st, err := s.store.Get(ctx, strikeID)
	if err != nil {
		return err
	}
	if st.Status != StatusActive {
		return ErrInvalidState
	}
	if err := s.store.SetStatus(ctx, strikeID, StatusActive, to, appealID); err != nil {
		return err
	}
	return s.EvaluateDriver(ctx, st.DriverID)
}

// ExpireDue persists the expired status on overdue strikes and re-evaluates
// every affected driver.
func (s *Service) ExpireDue(ctx context.Context) error {
	drivers, err := s.store.ExpireDue(ctx, s.now())
	if err != nil {
		return err
	}
	for _, driverID := range drivers {
		if err := s.EvaluateDriver(ctx, driverID); err != nil {
			s.log.WithError(err).WithField("driver_id", driverID).Error("re-evaluation after expiry failed")
		}
	}
	return nil
}

// RunExpirySweep runs ExpireDue on the configured interval until ctx ends.
func (s *Service) RunExpirySweep(ctx context.Context) {
	ticker := time.NewTicker(s.policy.Strikes.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ExpireDue(ctx); err != nil {
				s.log.WithError(err).Error("strike expiry sweep failed")
			}
		}
	}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Strike, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByDriver(ctx context.Context, driverID types.ID) ([]*Strike, error) {
	return s.store.ListByDriver(ctx, driverID)
}

func (s *Service) weight(st *Strike) int {
	if st.Severity == string(violation.SeveritySevere) {
		return s.policy.Strikes.SevereWeight
	}
	return 1
}

func strikeIDs(strikes []*Strike) []types.ID {
	ids := make([]types.ID, len(strikes))
	for i, st := range strikes {
		ids[i] = st.ID
	}
	return ids
}
