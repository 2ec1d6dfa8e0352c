// README: Per-trip safety session: one goroutine folds location ticks through
// the speed and deviation monitors and routes the events they emit. The
// monitors stay pure; every side effect happens here.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tripguard/internal/metrics"
	"tripguard/internal/modules/deviation"
	"tripguard/internal/modules/earlycomp"
	"tripguard/internal/modules/emergency"
	"tripguard/internal/modules/profile"
	"tripguard/internal/modules/speed"
	"tripguard/internal/modules/violation"
	"tripguard/internal/types"
)

// ViolationRecorder normalizes closed detector episodes into reviewable
// safety violations.
type ViolationRecorder interface {
	RecordSpeedViolation(ctx context.Context, sv *speed.Violation) (*violation.SafetyViolation, error)
	RecordDeviation(ctx context.Context, d *deviation.Deviation, driverID types.ID) (*violation.SafetyViolation, error)
}

type EmergencyRaiser interface {
	Raise(ctx context.Context, cmd emergency.RaiseCommand) (*emergency.EmergencyAlert, error)
}

type CompletionChecker interface {
	CheckCompletion(ctx context.Context, cmd earlycomp.CheckCommand) (*earlycomp.EarlyCompletion, error)
}

type OutcomeRecorder interface {
	RecordTripOutcome(ctx context.Context, driverID types.ID, clean bool) (*profile.DriverSafetyProfile, error)
}

// RoutePlanner fetches a fresh route when the deviation monitor asks for a
// recalculation.
type RoutePlanner interface {
	FetchRoute(ctx context.Context, origin, destination types.Point) ([]types.Point, error)
}

// Ports are the collaborators a session drives. All of them are optional in
// tests; nil ports disable the corresponding effect.
type Ports struct {
	SpeedStore     speed.Store
	DeviationStore deviation.Store
	Violations     ViolationRecorder
	Completions    CompletionChecker
	Profiles       OutcomeRecorder
	Emergencies    EmergencyRaiser
	Routes         RoutePlanner
	Feed           Feed
}

// Tick is one location sample from the telemetry feed.
type Tick struct {
	Timestamp  time.Time
	Location   types.Point
	Speed      float64
	SpeedLimit float64
	LimitKnown bool
}

type respondReq struct {
	response deviation.RiderResponse
	at       time.Time
}

type EndCommand struct {
	CompletionLocation types.Point
	At                 time.Time
}

type endResult struct {
	held *earlycomp.EarlyCompletion
	err  error
}

type endReq struct {
	cmd   EndCommand
	reply chan endResult
}

// Session owns one trip's detector state. All mutation happens on the run
// goroutine; the exported methods only pass messages to it.
type Session struct {
	TripID   types.ID
	DriverID types.ID
	RiderID  types.ID

	destination types.Point
	route       []types.Point

	speedMon   speed.Monitor
	devMon     deviation.Monitor
	speedState speed.State
	devState   deviation.State
	lastTick   Tick

	ticks     chan Tick
	responses chan respondReq
	routeCh   chan []types.Point
	endCh     chan endReq
	done      chan struct{}

	ports   Ports
	persist *Persister
	log     *logrus.Entry
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.ticks:
			s.handleTick(ctx, t)
		case r := <-s.responses:
			s.handleResponse(ctx, r)
		case route := <-s.routeCh:
			s.route = route
		case req := <-s.endCh:
			req.reply <- s.finish(ctx, req.cmd)
			return
		}
	}
}

func (s *Session) handleTick(ctx context.Context, t Tick) {
	metrics.TicksProcessed.WithLabelValues("processed").Inc()
	s.lastTick = t

	var speedEvents []speed.Event
	s.speedState, speedEvents = s.speedMon.Advance(s.speedState, speed.Tick{
		Timestamp:  t.Timestamp,
		Speed:      t.Speed,
		SpeedLimit: t.SpeedLimit,
		LimitKnown: t.LimitKnown,
		Location:   t.Location,
	})
	s.handleSpeedEvents(ctx, speedEvents)

	var devEvents []deviation.Event
	s.devState, devEvents = s.devMon.Advance(s.devState, deviation.Tick{
		Timestamp: t.Timestamp,
		Location:  t.Location,
	}, s.route)
	s.handleDeviationEvents(ctx, devEvents)
}

func (s *Session) handleSpeedEvents(ctx context.Context, events []speed.Event) {
	for _, ev := range events {
		switch {
		case ev.AlertChanged != nil:
			s.publish(ctx, FeedEvent{
				TripID:     s.TripID,
				Kind:       KindSpeedAlert,
				At:         s.lastTick.Timestamp,
				SpeedAlert: string(*ev.AlertChanged),
			})
		case ev.EpisodeOpened:
			metrics.ViolationsOpened.WithLabelValues("speeding").Inc()
		case ev.Closed != nil:
			s.persistSpeedViolation(ev.Closed)
		}
	}
}

func (s *Session) persistSpeedViolation(v *speed.Violation) {
	s.persist.Enqueue("speed violation "+string(v.ID), func(ctx context.Context) error {
		if err := s.ports.SpeedStore.Create(ctx, v); err != nil {
			return err
		}
		_, err := s.ports.Violations.RecordSpeedViolation(ctx, v)
		return err
	})
}

func (s *Session) handleDeviationEvents(ctx context.Context, events []deviation.Event) {
	for _, ev := range events {
		switch {
		case ev.Recalculate != nil:
			s.requestRouteRefresh(ctx)
		case ev.Opened != nil:
			metrics.ViolationsOpened.WithLabelValues("route_deviation").Inc()
			d := *ev.Opened
			s.persist.Enqueue("deviation "+string(d.ID), func(ctx context.Context) error {
				return s.ports.DeviationStore.Create(ctx, &d)
			})
			s.publish(ctx, FeedEvent{
				TripID:      s.TripID,
				Kind:        KindDeviationOpened,
				At:          s.lastTick.Timestamp,
				DeviationID: d.ID,
				DistanceM:   d.DeviationDistance,
			})
		case ev.AlertRequested != nil:
			s.publish(ctx, FeedEvent{
				TripID:      s.TripID,
				Kind:        KindDeviationPrompt,
				At:          ev.AlertRequested.At,
				DeviationID: ev.AlertRequested.DeviationID,
				DistanceM:   s.devState.LastDistance,
			})
		case ev.SOS != nil:
			s.escalateDeviation(ctx, ev.SOS.DeviationID, deviation.ResponseSOS,
				emergency.TypeRouteDeviationSOS, ev.SOS.At)
		case ev.NoResponse != nil:
			s.escalateDeviation(ctx, ev.NoResponse.DeviationID, deviation.ResponseNoResponse,
				emergency.TypeNoResponseAlert, ev.NoResponse.At)
		case ev.Resolved != nil:
			s.resolveDeviation(ctx, ev.Resolved)
		}
	}
}

// requestRouteRefresh fetches off the loop goroutine; the refreshed route is
// delivered back through routeCh. The buffered send means a fetch landing
// after the session ends is simply discarded.
func (s *Session) requestRouteRefresh(ctx context.Context) {
	if s.ports.Routes == nil {
		return
	}
	origin := s.lastTick.Location
	go func() {
		route, err := s.ports.Routes.FetchRoute(ctx, origin, s.destination)
		if err != nil {
			s.log.WithError(err).Warn("route recalculation failed")
			return
		}
		select {
		case s.routeCh <- route:
		default:
		}
	}()
}

// escalateDeviation marks the episode and raises an emergency alert. The
// safety violation record follows at resolution or trip end.
func (s *Session) escalateDeviation(ctx context.Context, id types.ID, resp deviation.RiderResponse, alertType emergency.AlertType, at time.Time) {
	s.persist.Enqueue("deviation escalation "+string(id), func(ctx context.Context) error {
		if err := s.ports.DeviationStore.SetResponse(ctx, id, resp); err != nil {
			return err
		}
		if resp == deviation.ResponseNoResponse {
			return s.ports.DeviationStore.SetAutoAlert(ctx, id)
		}
		return nil
	})

	if s.ports.Emergencies == nil {
		return
	}
	// Both the explicit SOS and the unanswered-prompt alert concern the rider.
	_, err := s.ports.Emergencies.Raise(ctx, emergency.RaiseCommand{
		TripID:   s.TripID,
		UserID:   s.RiderID,
		UserType: emergency.UserRider,
		Type:     alertType,
		Location: s.lastTick.Location,
		Context: emergency.Snapshot{
			Speed:             s.lastTick.Speed,
			SpeedLimit:        s.lastTick.SpeedLimit,
			DeviationDistance: s.devState.LastDistance,
			DriverID:          s.DriverID,
			RiderID:           s.RiderID,
		},
		At: at,
	})
	if err != nil {
		s.log.WithError(err).WithField("deviation_id", id).Error("raising deviation emergency failed")
	}
}

func (s *Session) resolveDeviation(ctx context.Context, ev *deviation.ResolvedEvent) {
	id, at, dur := ev.DeviationID, ev.At, ev.Duration
	s.persist.Enqueue("deviation resolution "+string(id), func(ctx context.Context) error {
		if err := s.ports.DeviationStore.Resolve(ctx, id, at, dur); err != nil {
			return err
		}
		d, err := s.ports.DeviationStore.Get(ctx, id)
		if err != nil {
			return err
		}
		_, err = s.ports.Violations.RecordDeviation(ctx, d, s.DriverID)
		return err
	})
	s.publish(ctx, FeedEvent{
		TripID:      s.TripID,
		Kind:        KindDeviationCleared,
		At:          at,
		DeviationID: id,
	})
}

func (s *Session) handleResponse(ctx context.Context, r respondReq) {
	episodeID := s.devState.EpisodeID
	var events []deviation.Event
	s.devState, events = s.devMon.Respond(s.devState, r.response, r.at)

	if r.response == deviation.ResponseOkay && episodeID != "" {
		s.persist.Enqueue("deviation response "+string(episodeID), func(ctx context.Context) error {
			return s.ports.DeviationStore.SetResponse(ctx, episodeID, deviation.ResponseOkay)
		})
	}
	s.handleDeviationEvents(ctx, events)
}

// finish closes the session at trip completion: flushes the open speeding
// episode, settles any open deviation, runs the early-completion check, and
// records the trip outcome on the driver's profile.
func (s *Session) finish(ctx context.Context, cmd EndCommand) endResult {
	clean := true

	if v := s.speedMon.Flush(s.speedState); v != nil {
		clean = false
		s.persistSpeedViolation(v)
	}

	if s.devState.Opened {
		clean = false
		s.resolveDeviation(ctx, &deviation.ResolvedEvent{
			DeviationID: s.devState.EpisodeID,
			At:          cmd.At,
			Duration:    cmd.At.Sub(s.devState.DeviationStart),
		})
	}

	var held *earlycomp.EarlyCompletion
	if s.ports.Completions != nil {
		var err error
		held, err = s.ports.Completions.CheckCompletion(ctx, earlycomp.CheckCommand{
			TripID:             s.TripID,
			DriverID:           s.DriverID,
			Destination:        s.destination,
			CompletionLocation: cmd.CompletionLocation,
			CompletedAt:        cmd.At,
		})
		if err != nil {
			return endResult{err: fmt.Errorf("completion check: %w", err)}
		}
		if held != nil {
			clean = false
			s.publish(ctx, FeedEvent{
				TripID:    s.TripID,
				Kind:      KindCompletionPrompt,
				At:        cmd.At,
				RecordID:  held.ID,
				DistanceM: held.DistanceFromDestination,
			})
		}
	}

	if s.ports.Profiles != nil {
		driverID, outcome := s.DriverID, clean
		s.persist.Enqueue("trip outcome "+string(s.TripID), func(ctx context.Context) error {
			_, err := s.ports.Profiles.RecordTripOutcome(ctx, driverID, outcome)
			return err
		})
	}
	return endResult{held: held}
}

func (s *Session) publish(ctx context.Context, ev FeedEvent) {
	if s.ports.Feed == nil {
		return
	}
	if err := s.ports.Feed.PublishSafetyEvent(ctx, ev); err != nil {
		s.log.WithError(err).WithField("kind", ev.Kind).Warn("publishing safety event failed")
	}
}
