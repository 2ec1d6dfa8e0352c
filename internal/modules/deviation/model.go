// README: Route deviation episode records and rider responses.
package deviation

import (
	"time"

	"tripguard/internal/types"
)

// RiderResponse is the rider's answer to the "are you OK?" prompt.
type RiderResponse string

const (
	ResponsePending    RiderResponse = "pending"
	ResponseOkay       RiderResponse = "okay"
	ResponseSOS        RiderResponse = "sos"
	ResponseNoResponse RiderResponse = "no_response"
)

// Deviation is one sustained off-route episode. At most one unresolved
// episode exists per trip; returning within tolerance of the route resolves
// it.
type Deviation struct {
	ID                types.ID
	TripID            types.ID
	Timestamp         time.Time // when the vehicle first left the route
	PlannedLocation   types.Point
	ActualLocation    types.Point
	DeviationDistance float64
	Duration          time.Duration
	RiderResponse     RiderResponse
	AlertShown        bool
	AutoAlertSent     bool
	Resolved          bool
	ResolvedAt        *time.Time
}
