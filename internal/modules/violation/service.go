// README: Safety violation recorder: normalizes detections and rider reports
// and drives the review lifecycle.
package violation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tripguard/internal/ai"
	"tripguard/internal/metrics"
	"tripguard/internal/modules/deviation"
	"tripguard/internal/modules/earlycomp"
	"tripguard/internal/modules/speed"
	"tripguard/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid violation state transition")
	ErrBadRequest   = errors.New("bad request")
)

// StrikeIssuer is the port to the strike engine. Issuance must be idempotent
// on the violation ID.
type StrikeIssuer interface {
	IssueForViolation(ctx context.Context, v *SafetyViolation) (types.ID, error)
}

type Service struct {
	store      Store
	strikes    StrikeIssuer
	summarizer ai.Summarizer // optional
	log        *logrus.Entry
}

func NewService(store Store, strikes StrikeIssuer, summarizer ai.Summarizer, log *logrus.Entry) *Service {
	return &Service{store: store, strikes: strikes, summarizer: summarizer, log: log}
}

// RecordSpeedViolation normalizes a finished speeding episode. The violation
// ID derives from the episode ID, so re-delivery from the persister is a
// no-op.
func (s *Service) RecordSpeedViolation(ctx context.Context, sv *speed.Violation) (*SafetyViolation, error) {
	loc := sv.Location
	v := &SafetyViolation{
		ID:       types.ID("viol-" + string(sv.ID)),
		TripID:   sv.TripID,
		DriverID: sv.DriverID,
		Type:     TypeSpeeding,
		Severity: mapSpeedSeverity(sv.Severity),
		Description: fmt.Sprintf("sustained %.0f km/h over the posted limit for %s",
			sv.MaxExcessSpeed, sv.Duration),
		Evidence: []Evidence{SpeedLog{
			StartTime:  sv.StartTime,
			EndTime:    sv.EndTime,
			MaxSpeed:   sv.MaxSpeed,
			SpeedLimit: sv.SpeedLimit,
			MaxExcess:  sv.MaxExcessSpeed,
			AvgExcess:  sv.AverageExcessSpeed,
		}},
		Timestamp: sv.StartTime,
		Location:  &loc,
		Status:    StatusPending,
	}
	return s.create(ctx, v)
}

// RecordDeviation normalizes a resolved or escalated deviation episode.
func (s *Service) RecordDeviation(ctx context.Context, d *deviation.Deviation, driverID types.ID) (*SafetyViolation, error) {
	sev := SeverityModerate
	if d.RiderResponse == deviation.ResponseSOS {
		sev = SeveritySevere
	}
	loc := d.ActualLocation
	v := &SafetyViolation{
		ID:       types.ID("viol-" + string(d.ID)),
		TripID:   d.TripID,
		DriverID: driverID,
		Type:     TypeRouteDeviation,
		Severity: sev,
		Description: fmt.Sprintf("deviated %.0f m from the planned route (rider response: %s)",
			d.DeviationDistance, d.RiderResponse),
		Evidence: []Evidence{RouteTrace{
			Planned:         d.PlannedLocation,
			Actual:          d.ActualLocation,
			DeviationMeters: d.DeviationDistance,
			Duration:        d.Duration,
		}},
		Timestamp: d.Timestamp,
		Location:  &loc,
		Status:    StatusPending,
	}
	return s.create(ctx, v)
}

// RecordEarlyCompletion normalizes a completion-check record.
func (s *Service) RecordEarlyCompletion(ctx context.Context, ec *earlycomp.EarlyCompletion) (*SafetyViolation, error) {
	sev := SeverityModerate
	if ec.RiderResponse == earlycomp.ResponseSOS {
		sev = SeveritySevere
	}
	loc := ec.ActualLocation
	v := &SafetyViolation{
		ID:       types.ID("viol-" + string(ec.ID)),
		TripID:   ec.TripID,
		DriverID: ec.DriverID,
		Type:     TypeEarlyCompletion,
		Severity: sev,
		Description: fmt.Sprintf("trip completed %.0f m from the destination (rider response: %s)",
			ec.DistanceFromDestination, ec.RiderResponse),
		Evidence: []Evidence{RouteTrace{
			Planned:         ec.DestinationLocation,
			Actual:          ec.ActualLocation,
			DeviationMeters: ec.DistanceFromDestination,
		}},
		Timestamp: ec.Timestamp,
		Location:  &loc,
		Status:    StatusPending,
	}
	return s.create(ctx, v)
}

type ReportCommand struct {
	TripID      types.ID
	DriverID    types.ID
	RiderID     types.ID
	Description string
	Evidence    []Evidence
	At          time.Time
}

// SubmitRiderReport records a manually filed report. Severity starts moderate
// and is settled during review.
func (s *Service) SubmitRiderReport(ctx context.Context, cmd ReportCommand) (*SafetyViolation, error) {
	if cmd.TripID == "" || cmd.DriverID == "" || cmd.RiderID == "" || cmd.Description == "" {
		return nil, ErrBadRequest
	}
	evidence := append([]Evidence{ReportText{Text: cmd.Description}}, cmd.Evidence...)
	v := &SafetyViolation{
		ID:          types.ID("viol-rpt-" + uuid.NewString()),
		TripID:      cmd.TripID,
		DriverID:    cmd.DriverID,
		RiderID:     cmd.RiderID,
		Type:        TypeRiderReport,
		Severity:    SeverityModerate,
		Description: cmd.Description,
		Evidence:    evidence,
		Timestamp:   cmd.At,
		Status:      StatusPending,
	}
	return s.create(ctx, v)
}

func (s *Service) create(ctx context.Context, v *SafetyViolation) (*SafetyViolation, error) {
	if err := s.store.Create(ctx, v); err != nil {
		return nil, err
	}
	metrics.ViolationsRecorded.WithLabelValues(string(v.Type), string(v.Severity)).Inc()
	s.log.WithFields(logrus.Fields{
		"violation_id": v.ID,
		"trip_id":      v.TripID,
		"type":         v.Type,
		"severity":     v.Severity,
	}).Info("safety violation recorded")
	return s.store.Get(ctx, v.ID)
}

type InvestigateCommand struct {
	ID         types.ID
	ReviewerID types.ID
	At         time.Time
}

// StartInvestigation moves a pending record into review and, when a
// summarizer is configured, attaches a case brief. Summary failures are
// logged and ignored; the review proceeds on the raw evidence.
func (s *Service) StartInvestigation(ctx context.Context, cmd InvestigateCommand) error {
	if cmd.ReviewerID == "" {
		return ErrBadRequest
	}
	v, err := s.store.Get(ctx, cmd.ID)
	if err != nil {
		return err
	}
	if !CanTransition(v.Status, StatusInvestigating) {
		return ErrInvalidState
	}
	if err := s.store.UpdateStatus(ctx, v.ID, v.Status, StatusInvestigating, cmd.ReviewerID, nil, cmd.At); err != nil {
		return err
	}

	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(ctx, s.caseText(v))
		if err != nil {
			s.log.WithError(err).WithField("violation_id", v.ID).Warn("case summary generation failed")
		} else if err := s.store.SetSummary(ctx, v.ID, summary); err != nil {
			s.log.WithError(err).WithField("violation_id", v.ID).Warn("storing case summary failed")
		}
	}
	return nil
}

type ReviewCommand struct {
	ID         types.ID
	ReviewerID types.ID
	Confirm    bool
	Resolution string
	At         time.Time
}

// Review settles an investigation. Confirming a moderate or severe violation
// issues a strike; a minor one stays on record without a strike.
func (s *Service) Review(ctx context.Context, cmd ReviewCommand) (*SafetyViolation, error) {
	if cmd.ReviewerID == "" {
		return nil, ErrBadRequest
	}
	v, err := s.store.Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	to := StatusDismissed
	if cmd.Confirm {
		to = StatusConfirmed
	}
	if !CanTransition(v.Status, to) {
		return nil, ErrInvalidState
	}
	if err := s.store.UpdateStatus(ctx, v.ID, v.Status, to, cmd.ReviewerID, &cmd.Resolution, cmd.At); err != nil {
		return nil, err
	}

	if cmd.Confirm && v.Severity != SeverityMinor && !v.StrikeIssued && s.strikes != nil {
		v.Status = to
		strikeID, err := s.strikes.IssueForViolation(ctx, v)
		if err != nil {
			// The confirmation stands; the strike is retried by a later
			// review sweep or manual action.
			s.log.WithError(err).WithField("violation_id", v.ID).Error("strike issuance failed")
			return s.store.Get(ctx, v.ID)
		}
		if err := s.store.SetStrike(ctx, v.ID, strikeID); err != nil {
			return nil, err
		}
	}
	return s.store.Get(ctx, v.ID)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*SafetyViolation, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByDriver(ctx context.Context, driverID types.ID) ([]*SafetyViolation, error) {
	return s.store.ListByDriver(ctx, driverID)
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]*SafetyViolation, error) {
	return s.store.ListByStatus(ctx, status)
}

func (s *Service) caseText(v *SafetyViolation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Type: %s\nSeverity: %s\nDescription: %s\n", v.Type, v.Severity, v.Description)
	for _, ev := range v.Evidence {
		b.WriteString(Describe(ev))
		b.WriteByte('\n')
	}
	return b.String()
}

func mapSpeedSeverity(sev speed.Severity) Severity {
	switch sev {
	case speed.SeveritySevere:
		return SeveritySevere
	case speed.SeverityModerate:
		return SeverityModerate
	default:
		return SeverityMinor
	}
}
