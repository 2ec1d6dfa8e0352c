// README: Driver safety profile: a versioned aggregate over the driver's
// safety history.
package profile

import (
	"time"

	"tripguard/internal/modules/suspension"
	"tripguard/internal/types"
)

// DriverSafetyProfile is derived, never independently authored: every field
// except the rating tallies and the streak is regenerated from the strike,
// suspension, and violation history on each recompute. Version guards
// concurrent recomputes; a stale writer loses.
type DriverSafetyProfile struct {
	DriverID           types.ID
	SafetyRating       float64
	TotalSafetyRatings int
	// RatingDistribution counts ratings by star value, index 0 unused.
	RatingDistribution [6]int
	// Scores run 0 to 100 and degrade with confirmed violations.
	RouteAdherenceScore  float64
	SpeedComplianceScore float64
	ActiveStrikes        int
	SuspensionStatus     suspension.DriverStatus
	Badges               []string
	LastViolation        *time.Time
	SafeTripsStreak      int
	Version              int64
	UpdatedAt            time.Time
}

// NewProfile is the starting state for a driver with no history.
func NewProfile(driverID types.ID) *DriverSafetyProfile {
	return &DriverSafetyProfile{
		DriverID:             driverID,
		RouteAdherenceScore:  100,
		SpeedComplianceScore: 100,
		SuspensionStatus:     suspension.DriverActive,
	}
}
