// README: Speed monitor; a pure state machine over location ticks.
package speed

import (
	"fmt"
	"time"

	"tripguard/internal/config"
	"tripguard/internal/types"
)

// Phase is the episode lifecycle position.
type Phase string

const (
	PhaseCompliant Phase = "compliant"
	PhaseViolating Phase = "violating"
	// PhaseClosing means the driver is back under the limit but the episode
	// stays open until compliance holds for the debounce window.
	PhaseClosing Phase = "closing"
)

// State is an immutable snapshot of the monitor between ticks. The zero
// value is a valid initial state.
type State struct {
	Phase      Phase
	AlertLevel AlertLevel

	EpisodeStart time.Time
	EpisodeOpen  bool // episode duration cleared the minimum length
	LastViolTick time.Time

	MaxSpeed     float64
	Limit        float64
	MaxExcess    float64
	MaxExcessLoc types.Point
	excessSum    float64
	excessCount  int

	CompliantSince time.Time
}

// Event is emitted by Advance. Exactly one of the pointer fields is set.
type Event struct {
	// AlertChanged carries the new live classification.
	AlertChanged *AlertLevel
	// EpisodeOpened fires once when the episode clears the minimum length.
	EpisodeOpened bool
	// Closed carries the finalized violation once the episode debounces shut.
	Closed *Violation
}

// Monitor classifies ticks for one trip. Advance is pure: it never touches
// the wall clock or performs I/O, all timing comes from tick timestamps.
type Monitor struct {
	TripID   types.ID
	DriverID types.ID
	Policy   config.Policy
}

func NewMonitor(tripID, driverID types.ID, pol config.Policy) Monitor {
	return Monitor{TripID: tripID, DriverID: driverID, Policy: pol}
}

// Advance folds one tick into the state and returns the next state plus any
// emitted events.
func (m Monitor) Advance(st State, tick Tick) (State, []Event) {
	if st.Phase == "" {
		st.Phase = PhaseCompliant
		st.AlertLevel = AlertNormal
	}

	var events []Event

	excess := 0.0
	if tick.LimitKnown {
		excess = tick.Speed - tick.SpeedLimit
	}

	if level := m.classify(excess); level != st.AlertLevel {
		st.AlertLevel = level
		events = append(events, Event{AlertChanged: &level})
	}

	if excess > 0 {
		st, events = m.advanceViolating(st, tick, excess, events)
	} else {
		st, events = m.advanceCompliant(st, tick, events)
	}
	return st, events
}

func (m Monitor) advanceViolating(st State, tick Tick, excess float64, events []Event) (State, []Event) {
	if st.Phase == PhaseCompliant {
		// Fresh episode.
		st = State{Phase: PhaseViolating, AlertLevel: st.AlertLevel, EpisodeStart: tick.Timestamp}
	} else {
		// Violating, or back over the limit before the debounce elapsed:
		// same episode continues.
		st.Phase = PhaseViolating
		st.CompliantSince = time.Time{}
	}

	st.LastViolTick = tick.Timestamp
	if tick.Speed > st.MaxSpeed {
		st.MaxSpeed = tick.Speed
	}
	if excess > st.MaxExcess {
		st.MaxExcess = excess
		st.MaxExcessLoc = tick.Location
		st.Limit = tick.SpeedLimit
	}
	st.excessSum += excess
	st.excessCount++

	if !st.EpisodeOpen && tick.Timestamp.Sub(st.EpisodeStart) >= m.Policy.Speed.MinEpisode {
		st.EpisodeOpen = true
		events = append(events, Event{EpisodeOpened: true})
	}
	return st, events
}

func (m Monitor) advanceCompliant(st State, tick Tick, events []Event) (State, []Event) {
	switch st.Phase {
	case PhaseViolating:
		if !st.EpisodeOpen {
			// Below the minimum episode length a single compliant tick
			// resets the consecutive-violation clock.
			return State{Phase: PhaseCompliant, AlertLevel: st.AlertLevel}, events
		}
		st.Phase = PhaseClosing
		st.CompliantSince = tick.Timestamp
	case PhaseClosing:
		if tick.Timestamp.Sub(st.CompliantSince) >= m.Policy.Speed.Debounce {
			v := m.finalize(st)
			events = append(events, Event{Closed: &v})
			return State{Phase: PhaseCompliant, AlertLevel: st.AlertLevel}, events
		}
	}
	return st, events
}

// Flush closes an open episode at trip end so no aggregate is lost. It
// returns nil when no episode had cleared the minimum length.
func (m Monitor) Flush(st State) *Violation {
	if !st.EpisodeOpen {
		return nil
	}
	v := m.finalize(st)
	return &v
}

func (m Monitor) finalize(st State) Violation {
	avg := 0.0
	if st.excessCount > 0 {
		avg = st.excessSum / float64(st.excessCount)
	}
	return Violation{
		ID:                 EpisodeID(m.TripID, st.EpisodeStart),
		TripID:             m.TripID,
		DriverID:           m.DriverID,
		StartTime:          st.EpisodeStart,
		EndTime:            st.LastViolTick,
		Duration:           st.LastViolTick.Sub(st.EpisodeStart),
		MaxSpeed:           st.MaxSpeed,
		SpeedLimit:         st.Limit,
		MaxExcessSpeed:     st.MaxExcess,
		AverageExcessSpeed: avg,
		Location:           st.MaxExcessLoc,
		Severity:           m.ClassifySeverity(st.MaxExcess),
	}
}

// EpisodeID is deterministic so retried writes of the same episode are
// idempotent.
func EpisodeID(tripID types.ID, start time.Time) types.ID {
	return types.ID(fmt.Sprintf("spd-%s-%d", tripID, start.UnixMilli()))
}

// classify maps excess speed to a live alert level. Monotone in excess.
func (m Monitor) classify(excess float64) AlertLevel {
	switch {
	case excess >= m.Policy.Speed.DangerMargin:
		return AlertDanger
	case excess >= m.Policy.Speed.WarningMargin:
		return AlertWarning
	default:
		return AlertNormal
	}
}

// ClassifySeverity buckets peak excess speed. Lower edges are inclusive:
// minor [5,10), moderate [10,20), severe [20,inf). Episodes that stay below
// the minor edge are still recorded as minor.
func (m Monitor) ClassifySeverity(maxExcess float64) Severity {
	switch {
	case maxExcess >= m.Policy.Speed.SevereExcess:
		return SeveritySevere
	case maxExcess >= m.Policy.Speed.ModerateExcess:
		return SeverityModerate
	default:
		return SeverityMinor
	}
}
