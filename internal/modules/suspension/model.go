// README: Driver suspensions and the eligibility state machine.
package suspension

import (
	"time"

	"tripguard/internal/types"
)

type Type string

const (
	TypeTemporary Type = "temporary"
	TypePermanent Type = "permanent"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusLifted  Status = "lifted"
	StatusExpired Status = "expired"
)

var AllowedTransitions = map[Status][]Status{
	StatusActive:  {StatusLifted, StatusExpired},
	StatusLifted:  {},
	StatusExpired: {},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Suspension bars a driver from taking trips. Temporary suspensions expire on
// their own; permanent ones end only through an explicit lift with a recorded
// reason.
type Suspension struct {
	ID        types.ID
	DriverID  types.ID
	Type      Type
	Reason    string
	StrikeIDs []types.ID
	StartedAt time.Time
	ExpiresAt *time.Time
	Status    Status
	// AcknowledgmentRequired keeps the driver ineligible until they confirm
	// the suspension in-app, even after it ends.
	AcknowledgmentRequired bool
	AcknowledgedAt         *time.Time
	LiftedAt               *time.Time
	LiftedReason           *string
}

// DriverStatus is the driver-level view derived from the latest suspension.
type DriverStatus string

const (
	DriverActive        DriverStatus = "active"
	DriverSuspendedTemp DriverStatus = "suspended_temp"
	DriverSuspendedPerm DriverStatus = "suspended_perm"
)
