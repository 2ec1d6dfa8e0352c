// README: Session registry: tracks the safety session of every in-progress
// trip and routes telemetry, rider responses, and completion to it.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tripguard/internal/config"
	"tripguard/internal/metrics"
	"tripguard/internal/modules/deviation"
	"tripguard/internal/modules/earlycomp"
	"tripguard/internal/modules/speed"
	"tripguard/internal/types"
)

var (
	ErrNoSession     = errors.New("no active session for trip")
	ErrSessionExists = errors.New("session already active for trip")
	ErrNotRunning    = errors.New("session registry is not running")
)

type Registry struct {
	ports  Ports
	policy config.Policy
	log    *logrus.Entry

	mu       sync.Mutex
	ctx      context.Context
	sessions map[types.ID]*Session

	persist *Persister
}

func NewRegistry(ports Ports, pol config.Policy, log *logrus.Entry) *Registry {
	return &Registry{
		ports:    ports,
		policy:   pol,
		log:      log,
		sessions: map[types.ID]*Session{},
		persist:  NewPersister(pol, log),
	}
}

// Run pins the registry to ctx and drives the persistence queue. Sessions
// started afterwards live until their trip ends or ctx is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
	return r.persist.Run(ctx)
}

type StartCommand struct {
	TripID      types.ID
	DriverID    types.ID
	RiderID     types.ID
	Route       []types.Point
	Destination types.Point
}

// Start opens a safety session for a trip that just began.
func (r *Registry) Start(cmd StartCommand) (*Session, error) {
	if cmd.TripID == "" || cmd.DriverID == "" {
		return nil, errors.New("trip and driver IDs are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx == nil {
		return nil, ErrNotRunning
	}
	if _, ok := r.sessions[cmd.TripID]; ok {
		return nil, ErrSessionExists
	}

	s := &Session{
		TripID:      cmd.TripID,
		DriverID:    cmd.DriverID,
		RiderID:     cmd.RiderID,
		destination: cmd.Destination,
		route:       cmd.Route,
		speedMon:    speed.NewMonitor(cmd.TripID, cmd.DriverID, r.policy),
		devMon:      deviation.NewMonitor(cmd.TripID, r.policy),
		ticks:       make(chan Tick, r.policy.Session.TickBuffer),
		responses:   make(chan respondReq, 4),
		routeCh:     make(chan []types.Point, 1),
		endCh:       make(chan endReq),
		done:        make(chan struct{}),
		ports:       r.ports,
		persist:     r.persist,
		log:         r.log.WithField("trip_id", cmd.TripID),
	}
	r.sessions[cmd.TripID] = s
	go s.run(r.ctx)

	s.log.Info("trip safety session started")
	return s, nil
}

// Submit feeds one location tick into a trip's session. The feed is lossy
// under pressure: when the session's buffer is full the tick is counted and
// dropped rather than stalling the telemetry intake.
func (r *Registry) Submit(tripID types.ID, t Tick) error {
	s, err := r.lookup(tripID)
	if err != nil {
		return err
	}
	select {
	case s.ticks <- t:
	default:
		metrics.TicksProcessed.WithLabelValues("dropped").Inc()
	}
	return nil
}

// Respond routes the rider's answer to a deviation prompt.
func (r *Registry) Respond(tripID types.ID, response deviation.RiderResponse, at time.Time) error {
	s, err := r.lookup(tripID)
	if err != nil {
		return err
	}
	select {
	case s.responses <- respondReq{response: response, at: at}:
		return nil
	case <-s.done:
		return ErrNoSession
	}
}

// End completes the trip: it tears the session down and returns the held
// early-completion record when the drop-off was away from the destination.
func (r *Registry) End(tripID types.ID, cmd EndCommand) (*earlycomp.EarlyCompletion, error) {
	s, err := r.lookup(tripID)
	if err != nil {
		return nil, err
	}

	req := endReq{cmd: cmd, reply: make(chan endResult, 1)}
	select {
	case s.endCh <- req:
	case <-s.done:
		return nil, ErrNoSession
	}
	res := <-req.reply

	r.mu.Lock()
	delete(r.sessions, tripID)
	r.mu.Unlock()

	s.log.Info("trip safety session ended")
	return res.held, res.err
}

// Active reports whether a trip currently has a session.
func (r *Registry) Active(tripID types.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[tripID]
	return ok
}

func (r *Registry) lookup(tripID types.ID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tripID]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}
