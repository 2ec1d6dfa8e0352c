// README: Payment dispute escrow: auto-holds, review, and fund resolution.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tripguard/internal/metrics"
	"tripguard/internal/modules/strike"
	"tripguard/internal/modules/violation"
	"tripguard/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid dispute state transition")
	ErrBadRequest   = errors.New("bad request")
)

// StrikeIssuer issues a strike when a resolution implies a safety finding.
type StrikeIssuer interface {
	Issue(ctx context.Context, cmd strike.IssueCommand) (*strike.Strike, error)
}

type Service struct {
	store     Store
	processor PaymentProcessor
	strikes   StrikeIssuer
	log       *logrus.Entry

	now func() time.Time
}

func NewService(store Store, processor PaymentProcessor, strikes StrikeIssuer, log *logrus.Entry) *Service {
	return &Service{store: store, processor: processor, strikes: strikes, log: log, now: time.Now}
}

type OpenCommand struct {
	TripID   types.ID
	RiderID  types.ID
	DriverID types.ID
	Amount   types.Money
	Reason   string
	AutoHold bool
	Evidence []violation.Evidence
}

// Open files a dispute. With AutoHold the trip's charge moves into a held
// escrow before the dispute commits; dispute and escrow are written in one
// transaction so neither exists without the other.
func (s *Service) Open(ctx context.Context, cmd OpenCommand) (*PaymentDispute, error) {
	if cmd.TripID == "" || cmd.Reason == "" || cmd.Amount.Amount <= 0 {
		return nil, ErrBadRequest
	}
	if existing, err := s.store.OpenByTrip(ctx, cmd.TripID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now()
	d := &PaymentDispute{
		ID:        types.ID("dispute-" + uuid.NewString()),
		TripID:    cmd.TripID,
		RiderID:   cmd.RiderID,
		DriverID:  cmd.DriverID,
		Amount:    cmd.Amount,
		Reason:    cmd.Reason,
		Evidence:  cmd.Evidence,
		Status:    StatusPending,
		AutoHold:  cmd.AutoHold,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var esc *PaymentEscrow
	if cmd.AutoHold {
		esc = &PaymentEscrow{
			ID:        types.ID("escrow-" + uuid.NewString()),
			TripID:    cmd.TripID,
			DisputeID: d.ID,
			Amount:    cmd.Amount,
			Status:    EscrowHeld,
			CreatedAt: now,
		}
		d.EscrowID = &esc.ID
		if err := s.processor.HoldFunds(ctx, esc.ID, cmd.TripID, cmd.Amount); err != nil {
			return nil, fmt.Errorf("holding funds for trip %s: %w", cmd.TripID, err)
		}
	}

	if err := s.store.CreateWithEscrow(ctx, d, esc); err != nil {
		return nil, err
	}
	if esc != nil {
		metrics.EscrowTransitions.WithLabelValues(string(EscrowHeld)).Inc()
	}
	s.log.WithFields(logrus.Fields{
		"dispute_id": d.ID,
		"trip_id":    d.TripID,
		"auto_hold":  d.AutoHold,
	}).Info("payment dispute opened")
	return d, nil
}

// OpenAutoHold is the SOS path: an emergency with funds in flight parks the
// charge in escrow pending review. Idempotent per trip.
func (s *Service) OpenAutoHold(ctx context.Context, tripID, riderID, driverID types.ID, amount types.Money, reason string) (*PaymentDispute, error) {
	return s.Open(ctx, OpenCommand{
		TripID:   tripID,
		RiderID:  riderID,
		DriverID: driverID,
		Amount:   amount,
		Reason:   reason,
		AutoHold: true,
	})
}

type ReviewCommand struct {
	ID         types.ID
	ReviewerID types.ID
	At         time.Time
}

func (s *Service) StartReview(ctx context.Context, cmd ReviewCommand) error {
	if cmd.ReviewerID == "" {
		return ErrBadRequest
	}
	return s.transition(ctx, cmd.ID, StatusUnderReview, cmd.At)
}

// Escalate hands a dispute that review cannot settle to a senior queue.
func (s *Service) Escalate(ctx context.Context, cmd ReviewCommand) error {
	if cmd.ReviewerID == "" {
		return ErrBadRequest
	}
	return s.transition(ctx, cmd.ID, StatusEscalated, cmd.At)
}

func (s *Service) transition(ctx context.Context, id types.ID, to Status, at time.Time) error {
	d, err := s.store.GetDispute(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(d.Status, to) {
		return ErrInvalidState
	}
	return s.store.UpdateStatus(ctx, d.ID, d.Status, to, at)
}

type ResolveCommand struct {
	ID         types.ID
	ReviewerID types.ID
	// RefundAmount is the portion returned to the rider; the remainder goes
	// to the driver. Must lie in [0, amount].
	RefundAmount int64
	Resolution   string
	// IssueStrike records the resolution as a safety finding against the
	// driver.
	IssueStrike bool
	At          time.Time
}

// Resolve settles a dispute and its escrow in one transaction. The refund R
// against the held amount A maps to the escrow outcome: R equal to A refunds
// the rider in full, zero releases everything to the driver, anything between
// splits the funds as a partial refund. R outside [0, A] is rejected.
func (s *Service) Resolve(ctx context.Context, cmd ResolveCommand) (*PaymentDispute, error) {
	if cmd.ReviewerID == "" || cmd.Resolution == "" {
		return nil, ErrBadRequest
	}
	d, err := s.store.GetDispute(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	if cmd.RefundAmount < 0 || cmd.RefundAmount > d.Amount.Amount {
		return nil, ErrBadRequest
	}

	var escrowStatus EscrowStatus
	var disputeStatus Status
	switch {
	case cmd.RefundAmount == d.Amount.Amount:
		escrowStatus = EscrowRefundedToRider
		disputeStatus = StatusApproved
	case cmd.RefundAmount == 0:
		escrowStatus = EscrowReleasedToDriver
		disputeStatus = StatusDenied
	default:
		escrowStatus = EscrowPartiallyRefunded
		disputeStatus = StatusApproved
	}
	if !CanTransition(d.Status, disputeStatus) {
		return nil, ErrInvalidState
	}

	refund := types.Money{Amount: cmd.RefundAmount, Currency: d.Amount.Currency}
	release := types.Money{Amount: d.Amount.Amount - cmd.RefundAmount, Currency: d.Amount.Currency}

	if d.EscrowID != nil {
		if refund.Amount > 0 {
			if err := s.processor.RefundToRider(ctx, *d.EscrowID, refund); err != nil {
				return nil, fmt.Errorf("refunding rider for dispute %s: %w", d.ID, err)
			}
		}
		if release.Amount > 0 {
			if err := s.processor.ReleaseToDriver(ctx, *d.EscrowID, release); err != nil {
				return nil, fmt.Errorf("releasing funds for dispute %s: %w", d.ID, err)
			}
		}
	}

	err = s.store.Resolve(ctx, Resolution{
		DisputeID:     d.ID,
		FromStatus:    d.Status,
		ToStatus:      disputeStatus,
		RefundAmount:  refund,
		Resolution:    cmd.Resolution,
		EscrowID:      d.EscrowID,
		EscrowStatus:  escrowStatus,
		ReleaseReason: cmd.Resolution,
		At:            cmd.At,
	})
	if err != nil {
		return nil, err
	}
	metrics.EscrowTransitions.WithLabelValues(string(escrowStatus)).Inc()

	if cmd.IssueStrike && s.strikes != nil && !d.StrikeIssued {
		st, err := s.strikes.Issue(ctx, strike.IssueCommand{
			DriverID: d.DriverID,
			TripID:   d.TripID,
			Type:     "payment_dispute",
			Reason:   cmd.Resolution,
			Severity: string(violation.SeverityModerate),
		})
		if err != nil {
			s.log.WithError(err).WithField("dispute_id", d.ID).Error("strike issuance from dispute failed")
		} else if err := s.store.SetStrike(ctx, d.ID, st.ID); err != nil {
			return nil, err
		}
	}
	return s.store.GetDispute(ctx, d.ID)
}

func (s *Service) GetDispute(ctx context.Context, id types.ID) (*PaymentDispute, error) {
	return s.store.GetDispute(ctx, id)
}

func (s *Service) GetEscrow(ctx context.Context, id types.ID) (*PaymentEscrow, error) {
	return s.store.GetEscrow(ctx, id)
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]*PaymentDispute, error) {
	return s.store.ListByStatus(ctx, status)
}
