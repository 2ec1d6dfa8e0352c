// README: Appeal processor: submission, review, and reversal of targets.
package appeal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tripguard/internal/modules/suspension"
	"tripguard/internal/modules/violation"
	"tripguard/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid appeal state transition")
	ErrBadRequest   = errors.New("bad request")
	ErrDuplicate    = errors.New("an open appeal already exists for this record")
)

// StrikeReverser flips an appealed strike and re-evaluates the driver, which
// can lift the suspension the strike caused.
type StrikeReverser interface {
	MarkAppealed(ctx context.Context, strikeID, appealID types.ID) error
}

// SuspensionLifter ends a contested suspension with a recorded reason.
type SuspensionLifter interface {
	Lift(ctx context.Context, cmd suspension.LiftCommand) error
}

type Service struct {
	store       Store
	strikes     StrikeReverser
	suspensions SuspensionLifter
	log         *logrus.Entry
}

func NewService(store Store, strikes StrikeReverser, suspensions SuspensionLifter, log *logrus.Entry) *Service {
	return &Service{store: store, strikes: strikes, suspensions: suspensions, log: log}
}

type SubmitCommand struct {
	DriverID     types.ID
	StrikeID     *types.ID
	SuspensionID *types.ID
	Reason       string
	Evidence     []violation.Evidence
	At           time.Time
}

// Submit files an appeal. The command must reference exactly one strike or
// exactly one suspension, and only one open appeal may exist per target.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*Appeal, error) {
	if cmd.DriverID == "" || cmd.Reason == "" {
		return nil, ErrBadRequest
	}
	if (cmd.StrikeID == nil) == (cmd.SuspensionID == nil) {
		return nil, ErrBadRequest
	}

	a := &Appeal{
		ID:           types.ID("appeal-" + uuid.NewString()),
		DriverID:     cmd.DriverID,
		StrikeID:     cmd.StrikeID,
		SuspensionID: cmd.SuspensionID,
		Reason:       cmd.Reason,
		Evidence:     cmd.Evidence,
		SubmittedAt:  cmd.At,
		Status:       StatusPending,
	}
	if open, err := s.store.OpenByTarget(ctx, a.Target()); err == nil && open != nil {
		return nil, ErrDuplicate
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"appeal_id": a.ID,
		"driver_id": a.DriverID,
		"target":    a.Target(),
	}).Info("appeal submitted")
	return a, nil
}

type ReviewCommand struct {
	ID         types.ID
	ReviewerID types.ID
	At         time.Time
}

// StartReview claims a pending appeal for a reviewer.
func (s *Service) StartReview(ctx context.Context, cmd ReviewCommand) error {
	if cmd.ReviewerID == "" {
		return ErrBadRequest
	}
	a, err := s.store.Get(ctx, cmd.ID)
	if err != nil {
		return err
	}
	if !CanTransition(a.Status, StatusUnderReview) {
		return ErrInvalidState
	}
	return s.store.UpdateStatus(ctx, a.ID, a.Status, StatusUnderReview, cmd.ReviewerID, nil, cmd.At)
}

type DecideCommand struct {
	ID         types.ID
	ReviewerID types.ID
	Approve    bool
	Resolution string
	At         time.Time
}

// Decide settles an appeal under review. Approval reverses the contested
// record: an appealed strike stops counting and the driver is re-evaluated;
// a contested suspension is lifted. Denial records the resolution and ends
// the appeal.
func (s *Service) Decide(ctx context.Context, cmd DecideCommand) (*Appeal, error) {
	if cmd.ReviewerID == "" || cmd.Resolution == "" {
		return nil, ErrBadRequest
	}
	a, err := s.store.Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	to := StatusDenied
	if cmd.Approve {
		to = StatusApproved
	}
	if !CanTransition(a.Status, to) {
		return nil, ErrInvalidState
	}
	if err := s.store.UpdateStatus(ctx, a.ID, a.Status, to, cmd.ReviewerID, &cmd.Resolution, cmd.At); err != nil {
		return nil, err
	}

	if cmd.Approve {
		switch {
		case a.StrikeID != nil:
			if err := s.strikes.MarkAppealed(ctx, *a.StrikeID, a.ID); err != nil {
				return nil, err
			}
		case a.SuspensionID != nil:
			err := s.suspensions.Lift(ctx, suspension.LiftCommand{
				SuspensionID: *a.SuspensionID,
				Reason:       "appeal " + string(a.ID) + " approved: " + cmd.Resolution,
				At:           cmd.At,
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return s.store.Get(ctx, a.ID)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Appeal, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByDriver(ctx context.Context, driverID types.ID) ([]*Appeal, error) {
	return s.store.ListByDriver(ctx, driverID)
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]*Appeal, error) {
	return s.store.ListByStatus(ctx, status)
}
