// README: Speed violation episode records and classification levels.
package speed

import (
	"time"

	"tripguard/internal/types"
)

// AlertLevel is the live classification shown to the driver while the trip
// is in progress.
type AlertLevel string

const (
	AlertNormal  AlertLevel = "normal"
	AlertWarning AlertLevel = "warning"
	AlertDanger  AlertLevel = "danger"
)

// Severity buckets a finished episode by its peak excess speed.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Tick is one instantaneous sample from the location feed. SpeedLimit comes
// from the external limit lookup; a tick without a known limit never counts
// as a violation.
type Tick struct {
	Timestamp  time.Time
	Speed      float64
	SpeedLimit float64
	LimitKnown bool
	Location   types.Point
}

// Violation is one aggregated speeding episode, persisted once the episode
// closes.
type Violation struct {
	ID                 types.ID
	TripID             types.ID
	DriverID           types.ID
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
	MaxSpeed           float64
	SpeedLimit         float64
	MaxExcessSpeed     float64
	AverageExcessSpeed float64
	Location           types.Point // where the peak excess was observed
	Severity           Severity
}
