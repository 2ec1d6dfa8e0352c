package violation

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"tripguard/internal/modules/speed"
	"tripguard/internal/types"
)

var reportedAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeStrikes struct {
	issued []types.ID
	err    error
}

func (f *fakeStrikes) IssueForViolation(_ context.Context, v *SafetyViolation) (types.ID, error) {
	if f.err != nil {
		return "", f.err
	}
	f.issued = append(f.issued, v.ID)
	return types.ID("strike-" + string(v.ID)), nil
}

type fakeSummarizer struct {
	summary string
	err     error
}

func (f fakeSummarizer) Summarize(_ context.Context, _ string) (string, error) {
	return f.summary, f.err
}

func testService(t *testing.T) (*Service, *MemStore, *fakeStrikes) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := NewMemStore()
	strikes := &fakeStrikes{}
	svc := NewService(store, strikes, fakeSummarizer{summary: "three sentence brief"}, logrus.NewEntry(logger))
	return svc, store, strikes
}

func speedEpisode(sev speed.Severity, maxExcess float64) *speed.Violation {
	return &speed.Violation{
		ID:                 "spd-trip-1-1000",
		TripID:             "trip-1",
		DriverID:           "driver-1",
		StartTime:          reportedAt,
		EndTime:            reportedAt.Add(12 * time.Second),
		Duration:           12 * time.Second,
		MaxSpeed:           65,
		SpeedLimit:         50,
		MaxExcessSpeed:     maxExcess,
		AverageExcessSpeed: maxExcess - 2,
		Severity:           sev,
	}
}

func TestRecordSpeedViolationIsIdempotent(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	first, err := svc.RecordSpeedViolation(ctx, speedEpisode(speed.SeverityModerate, 15))
	if err != nil {
		t.Fatalf("RecordSpeedViolation: %v", err)
	}
	if first.Type != TypeSpeeding || first.Severity != SeverityModerate || first.Status != StatusPending {
		t.Fatalf("unexpected record: %+v", first)
	}
	if len(first.Evidence) != 1 {
		t.Fatalf("evidence = %d items, want 1", len(first.Evidence))
	}
	if _, ok := first.Evidence[0].(SpeedLog); !ok {
		t.Fatalf("evidence[0] = %T, want SpeedLog", first.Evidence[0])
	}

	// Persister re-delivery of the same episode.
	second, err := svc.RecordSpeedViolation(ctx, speedEpisode(speed.SeverityModerate, 15))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("retry created a second record")
	}
	all, _ := svc.ListByDriver(ctx, "driver-1")
	if len(all) != 1 {
		t.Fatalf("driver has %d violations, want 1", len(all))
	}
}

func TestReviewLifecycleIssuesStrike(t *testing.T) {
	svc, _, strikes := testService(t)
	ctx := context.Background()

	v, err := svc.RecordSpeedViolation(ctx, speedEpisode(speed.SeverityModerate, 15))
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	// Confirming straight from pending is not allowed.
	if _, err := svc.Review(ctx, ReviewCommand{
		ID: v.ID, ReviewerID: "rev-1", Confirm: true, At: reportedAt,
	}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("pending -> confirmed err = %v, want ErrInvalidState", err)
	}

	if err := svc.StartInvestigation(ctx, InvestigateCommand{ID: v.ID, ReviewerID: "rev-1", At: reportedAt}); err != nil {
		t.Fatalf("StartInvestigation: %v", err)
	}
	got, err := svc.Review(ctx, ReviewCommand{
		ID: v.ID, ReviewerID: "rev-1", Confirm: true, Resolution: "telemetry is unambiguous", At: reportedAt.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got.Status != StatusConfirmed || !got.StrikeIssued || got.StrikeID == nil {
		t.Fatalf("confirmed moderate violation must carry a strike: %+v", got)
	}
	if len(strikes.issued) != 1 {
		t.Fatalf("strike engine called %d times, want 1", len(strikes.issued))
	}
}

func TestConfirmedMinorCarriesNoStrike(t *testing.T) {
	svc, _, strikes := testService(t)
	ctx := context.Background()

	v, _ := svc.RecordSpeedViolation(ctx, speedEpisode(speed.SeverityMinor, 7))
	if err := svc.StartInvestigation(ctx, InvestigateCommand{ID: v.ID, ReviewerID: "rev-1", At: reportedAt}); err != nil {
		t.Fatalf("StartInvestigation: %v", err)
	}
	got, err := svc.Review(ctx, ReviewCommand{ID: v.ID, ReviewerID: "rev-1", Confirm: true, At: reportedAt})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got.StrikeIssued || len(strikes.issued) != 0 {
		t.Fatalf("minor violation issued a strike: %+v", got)
	}
}

func TestDismissalIsTerminal(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	v, _ := svc.RecordSpeedViolation(ctx, speedEpisode(speed.SeveritySevere, 25))
	if err := svc.StartInvestigation(ctx, InvestigateCommand{ID: v.ID, ReviewerID: "rev-1", At: reportedAt}); err != nil {
		t.Fatalf("StartInvestigation: %v", err)
	}
	got, err := svc.Review(ctx, ReviewCommand{ID: v.ID, ReviewerID: "rev-1", Confirm: false, Resolution: "GPS noise", At: reportedAt})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got.Status != StatusDismissed || got.StrikeIssued {
		t.Fatalf("dismissal wrong: %+v", got)
	}

	if _, err := svc.Review(ctx, ReviewCommand{ID: v.ID, ReviewerID: "rev-2", Confirm: true, At: reportedAt}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("re-review of dismissed err = %v, want ErrInvalidState", err)
	}
}

func TestReviewRequiresReviewer(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	v, _ := svc.RecordSpeedViolation(ctx, speedEpisode(speed.SeverityModerate, 15))
	if err := svc.StartInvestigation(ctx, InvestigateCommand{ID: v.ID, At: reportedAt}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}
	if _, err := svc.Review(ctx, ReviewCommand{ID: v.ID, Confirm: true, At: reportedAt}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}
}

func TestInvestigationAttachesSummary(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()

	v, _ := svc.RecordSpeedViolation(ctx, speedEpisode(speed.SeverityModerate, 15))
	if err := svc.StartInvestigation(ctx, InvestigateCommand{ID: v.ID, ReviewerID: "rev-1", At: reportedAt}); err != nil {
		t.Fatalf("StartInvestigation: %v", err)
	}
	got, _ := store.Get(ctx, v.ID)
	if got.Summary != "three sentence brief" {
		t.Fatalf("summary = %q", got.Summary)
	}
}

func TestSummarizerFailureDoesNotBlockReview(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := NewMemStore()
	svc := NewService(store, &fakeStrikes{}, fakeSummarizer{err: errors.New("quota")}, logrus.NewEntry(logger))
	ctx := context.Background()

	v, _ := svc.RecordSpeedViolation(ctx, speedEpisode(speed.SeverityModerate, 15))
	if err := svc.StartInvestigation(ctx, InvestigateCommand{ID: v.ID, ReviewerID: "rev-1", At: reportedAt}); err != nil {
		t.Fatalf("StartInvestigation: %v", err)
	}
	got, _ := store.Get(ctx, v.ID)
	if got.Status != StatusInvestigating || got.Summary != "" {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestSubmitRiderReport(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	v, err := svc.SubmitRiderReport(ctx, ReportCommand{
		TripID:      "trip-9",
		DriverID:    "driver-9",
		RiderID:     "rider-9",
		Description: "driver refused to follow the route",
		Evidence:    []Evidence{MediaRef{URL: "s3://evidence/1.jpg", MediaType: "image/jpeg", CapturedAt: reportedAt}},
		At:          reportedAt,
	})
	if err != nil {
		t.Fatalf("SubmitRiderReport: %v", err)
	}
	if v.Type != TypeRiderReport || v.Status != StatusPending {
		t.Fatalf("unexpected record: %+v", v)
	}
	// The rider's statement always leads the evidence list.
	if _, ok := v.Evidence[0].(ReportText); !ok || len(v.Evidence) != 2 {
		t.Fatalf("evidence = %#v", v.Evidence)
	}

	if _, err := svc.SubmitRiderReport(ctx, ReportCommand{TripID: "trip-9"}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}
}

func TestEvidenceRoundTripAndRendering(t *testing.T) {
	evs := []Evidence{
		SpeedLog{StartTime: reportedAt, EndTime: reportedAt.Add(12 * time.Second), MaxSpeed: 65, SpeedLimit: 50, MaxExcess: 15, AvgExcess: 13},
		RouteTrace{Planned: types.Point{Lat: 25.03, Lng: 121.56}, Actual: types.Point{Lat: 25.04, Lng: 121.57}, DeviationMeters: 150, Duration: 45 * time.Second},
		ChatLog{Messages: []ChatMessage{{Sender: "rider", Text: "where are we going?", SentAt: reportedAt}}},
		MediaRef{URL: "s3://evidence/1.jpg", MediaType: "image/jpeg", CapturedAt: reportedAt},
		ReportText{Text: "driver took an unknown detour"},
	}

	raw, err := MarshalEvidence(evs)
	if err != nil {
		t.Fatalf("MarshalEvidence: %v", err)
	}
	back, err := UnmarshalEvidence(raw)
	if err != nil {
		t.Fatalf("UnmarshalEvidence: %v", err)
	}
	if len(back) != len(evs) {
		t.Fatalf("round trip lost items: %d -> %d", len(evs), len(back))
	}
	for i, ev := range back {
		if Describe(ev) == "" {
			t.Errorf("item %d renders empty", i)
		}
	}
	if !strings.Contains(Describe(back[0]), "15 over") {
		t.Errorf("speed log rendering: %q", Describe(back[0]))
	}

	if _, err := UnmarshalEvidence([]byte(`[{"kind":"voice_note","data":{}}]`)); err == nil {
		t.Fatal("unknown evidence kind accepted")
	}
}
