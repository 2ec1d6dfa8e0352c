// README: Emergency alerts raised during or after a trip.
package emergency

import (
	"time"

	"tripguard/internal/types"
)

type AlertType string

const (
	TypeSOSPressed         AlertType = "sos_pressed"
	TypeRouteDeviationSOS  AlertType = "route_deviation_sos"
	TypeEarlyCompletionSOS AlertType = "early_completion_sos"
	TypeNoResponseAlert    AlertType = "no_response_alert"
	TypePanicButton        AlertType = "panic_button"
	TypeAutoAlert          AlertType = "auto_alert"
)

type UserType string

const (
	UserRider  UserType = "rider"
	UserDriver UserType = "driver"
)

// Snapshot freezes the trip situation at the moment of the trigger.
type Snapshot struct {
	Speed             float64  `json:"speed"`
	SpeedLimit        float64  `json:"speed_limit"`
	DeviationDistance float64  `json:"deviation_m"`
	DriverID          types.ID `json:"driver_id"`
	RiderID           types.ID `json:"rider_id"`
}

/// EmergencyAlert cannot silently expire: it stays open until someone records
// an explicit resolution.
type EmergencyAlert struct {
	ID                   types.ID
	TripID               types.ID
	UserID               types.ID
	UserType             UserType
	Type                 AlertType
	Timestamp            time.Time
	Location             types.Point
	Context              Snapshot
	ContactsNotified     []string
	AuthoritiesContacted bool
	Resolved             bool
	ResolvedAt           *time.Time
	Resolution           *string
}
