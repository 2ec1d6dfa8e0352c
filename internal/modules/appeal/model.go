// README: Driver appeals against strikes and suspensions.
package appeal

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
)

var AllowedTransitions = map[Status][]Status{
	StatusPending:     {StatusUnderReview},
	StatusUnderReview: {StatusApproved, StatusDenied},
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

// Appeal contests exactly one strike or exactly one suspension, never both.
// A denied appeal is terminal for its target but does not block appeals
// against other records.
type Appeal struct {
	ID           types.ID
	DriverID     types.ID
	StrikeID     *types.ID
	SuspensionID *types.ID
	Reason       string
	Evidence     []violation.Evidence
	SubmittedAt  time.Time
	Status       Status
	ReviewedBy   *types.ID
	ReviewedAt   *time.Time
	Resolution   *string
}

// Target returns the contested record's ID.
func (a *Appeal) Target() types.ID {
	if a.StrikeID != nil {
		return *a.StrikeID
	}
	if a.SuspensionID != nil {
		return *a.SuspensionID
	}
	return ""
}
