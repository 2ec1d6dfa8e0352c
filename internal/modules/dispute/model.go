// README: Payment disputes and the escrow records that back them.
package dispute

import (
	"time"

	"tripguard/internal/modules/violation"
	"tripguard/internal/types"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusDenied      Status = "denied"
	StatusEscalated   Status = "escalated"
)

var AllowedTransitions = map[Status][]Status{
	StatusPending:     {StatusUnderReview},
	StatusUnderReview: {StatusApproved, StatusDenied, StatusEscalated},
	StatusEscalated:   {StatusApproved, StatusDenied},
	StatusApproved:    {},
	StatusDenied:      {},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type EscrowStatus string

const (
	EscrowHeld              EscrowStatus = "held"
	EscrowReleasedToDriver  EscrowStatus = "released_to_driver"
	EscrowRefundedToRider   EscrowStatus = "refunded_to_rider"
	EscrowPartiallyRefunded EscrowStatus = "partially_refunded"
)

// PaymentDispute contests a trip's charge. With autoHold the trip funds sit
// in escrow until resolution instead of settling normally.
type PaymentDispute struct {
	ID           types.ID
	TripID       types.ID
	RiderID      types.ID
	DriverID     types.ID
	Amount       types.Money
	Reason       string
	Evidence     []violation.Evidence
	Status       Status
	AutoHold     bool
	EscrowID     *types.ID
	Resolution   *string
	RefundAmount *types.Money
	StrikeIssued bool
	StrikeID     *types.ID
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ResolvedAt   *time.Time
}

// PaymentEscrow holds a trip's charge while its dispute is open. Its amount
// never exceeds the originating trip's charge, and the refunded and released
// portions always sum to at most that amount.
type PaymentEscrow struct {
	ID            types.ID
	TripID        types.ID
	DisputeID     types.ID
	Amount        types.Money
	Status        EscrowStatus
	CreatedAt     time.Time
	ReleasedAt    *time.Time
	ReleaseReason *string
}
