// README: Route deviation monitor; a pure state machine over location ticks.
package deviation

import (
	"fmt"
	"time"

	"tripguard/internal/config"
	"tripguard/internal/geo"
	"tripguard/internal/types"
)

// Phase is the episode lifecycle position.
type Phase string

const (
	PhaseIdle Phase = "idle"
	// PhaseDeviating: off-route, alert not currently shown (either the
	// delay has not elapsed or a dismissal cooldown is armed).
	PhaseDeviating Phase = "deviating"
	// PhaseAlerting: "are you OK?" shown, awaiting the rider.
	PhaseAlerting Phase = "alerting"
	// PhaseEscalated: SOS raised or the rider never answered; no further
	// alerts for this episode.
	PhaseEscalated Phase = "escalated"
)

// Tick is one location sample.
type Tick struct {
	Timestamp time.Time
	Location  types.Point
}

// State is an immutable snapshot between ticks. The zero value is Idle, and
// resolving an episode returns to the zero value, so episode-scoped timers
// structurally cannot leak across the return-to-route boundary.
type State struct {
	Phase          Phase
	EpisodeID      types.ID
	DeviationStart time.Time
	LastDistance   float64
	LastRecalc     time.Time
	AlertShownAt   time.Time
	DismissedUntil time.Time
	Opened         bool
}

// Event is emitted by Advance/Respond. Exactly one field is set.
type Event struct {
	// Recalculate signals that a fresh route should be fetched.
	Recalculate *RecalculateEvent
	// Opened carries the new episode record at alert time.
	Opened *Deviation
	// AlertRequested asks the rider "are you OK?"; it can repeat within one
	// episode after a dismissal cooldown expires.
	AlertRequested *AlertEvent
	// SOS escalates to the emergency dispatcher.
	SOS *AlertEvent
	// NoResponse fires when the rider never answered the prompt.
	NoResponse *AlertEvent
	// Resolved fires when the vehicle returns within tolerance.
	Resolved *ResolvedEvent
}

type RecalculateEvent struct {
	At       time.Time
	Distance float64
}

type AlertEvent struct {
	DeviationID types.ID
	At          time.Time
}

type ResolvedEvent struct {
	DeviationID types.ID
	At          time.Time
	Duration    time.Duration
}

// Monitor watches one trip's adherence to its planned route. Advance and
// Respond are pure; all timing comes from caller-supplied timestamps.
type Monitor struct {
	TripID   types.ID
	Policy   config.Policy
	Distance geo.DistanceFunc
}

func NewMonitor(tripID types.ID, pol config.Policy) Monitor {
	return Monitor{TripID: tripID, Policy: pol, Distance: geo.DistanceToRouteMeters}
}

// Advance folds one tick into the state against the current planned route.
// The route is a parameter because a recalculation can replace it mid-trip.
func (m Monitor) Advance(st State, tick Tick, route []types.Point) (State, []Event) {
	if st.Phase == "" {
		st.Phase = PhaseIdle
	}

	dist, ok := m.Distance(tick.Location, route)
	if !ok {
		// Degenerate (empty) route: deviation is unknowable; stay put.
		return st, nil
	}
	st.LastDistance = dist

	if dist <= m.Policy.Deviation.ThresholdMeters {
		return m.returnToRoute(st, tick)
	}

	var events []Event

	if st.Phase == PhaseIdle {
		st = State{
			Phase:          PhaseDeviating,
			EpisodeID:      EpisodeID(m.TripID, tick.Timestamp),
			DeviationStart: tick.Timestamp,
			LastDistance:   dist,
		}
	}

	// Recalculation signal, rate-limited by its own cooldown. The first
	// off-route tick fires immediately.
	if st.LastRecalc.IsZero() || tick.Timestamp.Sub(st.LastRecalc) >= m.Policy.Deviation.RecalcCooldown {
		st.LastRecalc = tick.Timestamp
		events = append(events, Event{Recalculate: &RecalculateEvent{At: tick.Timestamp, Distance: dist}})
	}

	switch st.Phase {
	case PhaseDeviating:
		sustained := tick.Timestamp.Sub(st.DeviationStart) >= m.Policy.Deviation.AlertDelay
		cooledDown := st.DismissedUntil.IsZero() || !tick.Timestamp.Before(st.DismissedUntil)
		if sustained && cooledDown {
			st.Phase = PhaseAlerting
			st.AlertShownAt = tick.Timestamp
			if !st.Opened {
				st.Opened = true
				events = append(events, Event{Opened: m.newRecord(st, tick, route)})
			}
			events = append(events, Event{AlertRequested: &AlertEvent{DeviationID: st.EpisodeID, At: tick.Timestamp}})
		}
	case PhaseAlerting:
		if tick.Timestamp.Sub(st.AlertShownAt) >= m.Policy.Deviation.ResponseTimeout {
			st.Phase = PhaseEscalated
			events = append(events, Event{NoResponse: &AlertEvent{DeviationID: st.EpisodeID, At: tick.Timestamp}})
		}
	}
	return st, events
}

// Respond applies the rider's answer to a shown alert. Answers outside the
// alerting phase are ignored (stale taps after resolution).
func (m Monitor) Respond(st State, response RiderResponse, at time.Time) (State, []Event) {
	if st.Phase != PhaseAlerting {
		return st, nil
	}
	switch response {
	case ResponseOkay:
		st.Phase = PhaseDeviating
		st.DismissedUntil = at.Add(m.Policy.Deviation.ReAlertCooldown)
		return st, nil
	case ResponseSOS:
		st.Phase = PhaseEscalated
		return st, []Event{{SOS: &AlertEvent{DeviationID: st.EpisodeID, At: at}}}
	default:
		return st, nil
	}
}

func (m Monitor) returnToRoute(st State, tick Tick) (State, []Event) {
	if st.Phase == PhaseIdle {
		return st, nil
	}
	var events []Event
	if st.Opened {
		events = append(events, Event{Resolved: &ResolvedEvent{
			DeviationID: st.EpisodeID,
			At:          tick.Timestamp,
			Duration:    tick.Timestamp.Sub(st.DeviationStart),
		}})
	}
	// Full reset: no timer or cooldown survives the episode boundary.
	return State{Phase: PhaseIdle}, events
}

func (m Monitor) newRecord(st State, tick Tick, route []types.Point) *Deviation {
	return &Deviation{
		ID:                st.EpisodeID,
		TripID:            m.TripID,
		Timestamp:         st.DeviationStart,
		PlannedLocation:   nearestRoutePoint(tick.Location, route),
		ActualLocation:    tick.Location,
		DeviationDistance: st.LastDistance,
		RiderResponse:     ResponsePending,
		AlertShown:        true,
	}
}

// EpisodeID is deterministic so retried writes of the same episode are
// idempotent.
func EpisodeID(tripID types.ID, start time.Time) types.ID {
	return types.ID(fmt.Sprintf("dev-%s-%d", tripID, start.UnixMilli()))
}

func nearestRoutePoint(p types.Point, route []types.Point) types.Point {
	if len(route) == 0 {
		return p
	}
	best := route[0]
	bestDist := geo.HaversineMeters(p, route[0])
	for _, rp := range route[1:] {
		if d := geo.HaversineMeters(p, rp); d < bestDist {
			best, bestDist = rp, d
		}
	}
	return best
}
