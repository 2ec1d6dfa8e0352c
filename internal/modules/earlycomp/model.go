// README: Early completion records for trips ended far from the destination.
package earlycomp

import (
	"time"

	"tripguard/internal/types"
)

// Response is the rider's answer to the completion-check prompt.
type Response string

const (
	ResponsePending    Response = "pending"
	ResponseOkay       Response = "okay"
	ResponseSOS        Response = "sos"
	ResponseNoResponse Response = "no_response"
)

// EarlyCompletion is opened when a trip is completed beyond the tolerance
// radius of the agreed destination. While unresolved the trip payment stays
// held in escrow. At most one record exists per trip.
type EarlyCompletion struct {
	ID                      types.ID
	TripID                  types.ID
	DriverID                types.ID
	Timestamp               time.Time
	DestinationLocation     types.Point
	ActualLocation          types.Point
	DistanceFromDestination float64
	RiderResponse           Response
	PaymentHeld             bool
	// ManualReview marks a record the rider never answered; it is never
	// auto-released.
	ManualReview bool
	Resolved     bool
	ResolvedAt   *time.Time
}

// RecordID is deterministic per trip so a retried completion check never
// opens a second record.
func RecordID(tripID types.ID) types.ID {
	return types.ID("ecp-" + string(tripID))
}
