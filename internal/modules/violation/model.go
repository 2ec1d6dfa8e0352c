// README: Canonical safety violation records and their review lifecycle.
package violation

import (
	"time"

	"tripguard/internal/types"
)

type Type string

const (
	TypeSpeeding        Type = "speeding"
	TypeRouteDeviation  Type = "route_deviation"
	TypeEarlyCompletion Type = "early_completion"
	TypeRiderReport     Type = "rider_report"
)

type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

type Status string

const (
	StatusPending       Status = "pending"
	StatusInvestigating Status = "investigating"
	StatusConfirmed     Status = "confirmed"
	StatusDismissed     Status = "dismissed"
)

var AllowedTransitions = map[Status][]Status{
	StatusPending:       {StatusInvestigating},
	StatusInvestigating: {StatusConfirmed, StatusDismissed},
	StatusConfirmed:     {},
	StatusDismissed:     {},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SafetyViolation unifies detector output and rider reports into one incident
// record for the review queue.
type SafetyViolation struct {
	ID          types.ID
	TripID      types.ID
	DriverID    types.ID
	RiderID     types.ID
	Type        Type
	Severity    Severity
	Description string
	Evidence    []Evidence
	Timestamp   time.Time
	Location    *types.Point
	// Summary is an optional machine-written case brief for reviewers. It
	// never influences severity or status.
	Summary      string
	StrikeIssued bool
	StrikeID     *types.ID
	Status       Status
	Resolution   *string
	ReviewedBy   *types.ID
	ReviewedAt   *time.Time
}
