package profile

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"tripguard/internal/modules/strike"
	"tripguard/internal/modules/suspension"
	"tripguard/internal/modules/violation"
	"tripguard/internal/types"
)

var computedAt = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

type fakeSources struct {
	strikes    []*strike.Strike
	weighted   int
	status     suspension.DriverStatus
	violations []*violation.SafetyViolation
}

func (f *fakeSources) ActiveStrikes(_ context.Context, _ types.ID) ([]*strike.Strike, int, error) {
	return f.strikes, f.weighted, nil
}

func (f *fakeSources) DriverStatusFor(_ context.Context, _ types.ID) (suspension.DriverStatus, error) {
	if f.status == "" {
		return suspension.DriverActive, nil
	}
	return f.status, nil
}

func (f *fakeSources) ListByDriver(_ context.Context, _ types.ID) ([]*violation.SafetyViolation, error) {
	return f.violations, nil
}

func testService(t *testing.T) (*Service, *MemStore, *fakeSources) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := NewMemStore()
	sources := &fakeSources{}
	svc := NewService(store, sources, sources, sources, logrus.NewEntry(logger))
	svc.now = func() time.Time { return computedAt }
	return svc, store, sources
}

func confirmed(vtype violation.Type, ts time.Time) *violation.SafetyViolation {
	return &violation.SafetyViolation{
		ID: types.ID("viol-" + string(vtype)), DriverID: "driver-1",
		Type: vtype, Status: violation.StatusConfirmed, Timestamp: ts,
	}
}

func TestFreshDriverGetsCleanProfile(t *testing.T) {
	svc, _, _ := testService(t)
	p, err := svc.Recompute(context.Background(), "driver-1")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if p.RouteAdherenceScore != 100 || p.SpeedComplianceScore != 100 {
		t.Fatalf("scores = %v/%v, want 100/100", p.RouteAdherenceScore, p.SpeedComplianceScore)
	}
	if p.SuspensionStatus != suspension.DriverActive || p.ActiveStrikes != 0 {
		t.Fatalf("profile = %+v", p)
	}
	if len(p.Badges) != 1 || p.Badges[0] != "clean_record" {
		t.Fatalf("badges = %v", p.Badges)
	}
	if p.Version != 1 {
		t.Fatalf("version = %d, want 1", p.Version)
	}
}

func TestRecomputeDerivesFromSources(t *testing.T) {
	svc, _, sources := testService(t)
	sources.weighted = 3
	sources.status = suspension.DriverSuspendedTemp
	sources.violations = []*violation.SafetyViolation{
		confirmed(violation.TypeSpeeding, computedAt.Add(-48*time.Hour)),
		confirmed(violation.TypeSpeeding, computedAt.Add(-24*time.Hour)),
		confirmed(violation.TypeRouteDeviation, computedAt.Add(-1*time.Hour)),
	}

	p, err := svc.Recompute(context.Background(), "driver-1")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if p.ActiveStrikes != 3 || p.SuspensionStatus != suspension.DriverSuspendedTemp {
		t.Fatalf("profile = %+v", p)
	}
	if p.SpeedComplianceScore != 80 || p.RouteAdherenceScore != 90 {
		t.Fatalf("scores = %v/%v, want 80/90", p.SpeedComplianceScore, p.RouteAdherenceScore)
	}
	if p.LastViolation == nil || !p.LastViolation.Equal(computedAt.Add(-1*time.Hour)) {
		t.Fatalf("lastViolation = %v", p.LastViolation)
	}
	if len(p.Badges) != 0 {
		t.Fatalf("badges = %v", p.Badges)
	}
}

func TestDismissedViolationsDoNotDegradeScores(t *testing.T) {
	svc, _, sources := testService(t)
	v := confirmed(violation.TypeSpeeding, computedAt)
	v.Status = violation.StatusDismissed
	sources.violations = []*violation.SafetyViolation{v}

	p, err := svc.Recompute(context.Background(), "driver-1")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if p.SpeedComplianceScore != 100 {
		t.Fatalf("score = %v, want 100", p.SpeedComplianceScore)
	}
	if p.LastViolation != nil {
		t.Fatalf("dismissed violation recorded as last: %v", p.LastViolation)
	}
}

func TestRatingsAccumulate(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	for _, stars := range []int{5, 5, 4} {
		if _, err := svc.RecordRating(ctx, "driver-1", stars); err != nil {
			t.Fatalf("RecordRating(%d): %v", stars, err)
		}
	}
	p, _ := svc.Get(ctx, "driver-1")
	if p.TotalSafetyRatings != 3 {
		t.Fatalf("total = %d, want 3", p.TotalSafetyRatings)
	}
	if want := (5.0 + 5 + 4) / 3; p.SafetyRating != want {
		t.Fatalf("rating = %v, want %v", p.SafetyRating, want)
	}
	if p.RatingDistribution[5] != 2 || p.RatingDistribution[4] != 1 {
		t.Fatalf("distribution = %v", p.RatingDistribution)
	}

	if _, err := svc.RecordRating(ctx, "driver-1", 6); err == nil {
		t.Fatal("rating of 6 accepted")
	}
}

func TestStreakAdvancesAndResets(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.RecordTripOutcome(ctx, "driver-1", true); err != nil {
			t.Fatalf("RecordTripOutcome: %v", err)
		}
	}
	p, _ := svc.Get(ctx, "driver-1")
	if p.SafeTripsStreak != 3 {
		t.Fatalf("streak = %d, want 3", p.SafeTripsStreak)
	}

	if _, err := svc.RecordTripOutcome(ctx, "driver-1", false); err != nil {
		t.Fatalf("RecordTripOutcome: %v", err)
	}
	p, _ = svc.Get(ctx, "driver-1")
	if p.SafeTripsStreak != 0 {
		t.Fatalf("streak = %d, want 0 after violation trip", p.SafeTripsStreak)
	}
}

func TestStaleSaveRejected(t *testing.T) {
	_, store, _ := testService(t)
	ctx := context.Background()

	p := NewProfile("driver-1")
	p.Version = 1
	if err := store.Save(ctx, p, 0); err != nil {
		t.Fatalf("initial save: %v", err)
	}

	stale := NewProfile("driver-1")
	stale.Version = 1
	if err := store.Save(ctx, stale, 0); err != ErrConflict {
		t.Fatalf("stale save err = %v, want ErrConflict", err)
	}
	if err := store.Save(ctx, NewProfile("driver-2"), 3); err != ErrConflict {
		t.Fatalf("fresh row with nonzero expected version err = %v, want ErrConflict", err)
	}
}

// raceStore injects a concurrent write between the service's read and save
// so the first save lands on a moved version.
type raceStore struct {
	*MemStore
	raceOnce bool
}

func (s *raceStore) Get(ctx context.Context, driverID types.ID) (*DriverSafetyProfile, error) {
	p, err := s.MemStore.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if s.raceOnce {
		s.raceOnce = false
		racer := *p
		racer.Version++
		if err := s.MemStore.Save(ctx, &racer, p.Version); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// The loser of a version race retries against the fresh row and the
// mutation applies exactly once.
func TestConcurrentUpdateRetries(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := &raceStore{MemStore: NewMemStore()}
	sources := &fakeSources{}
	svc := NewService(store, sources, sources, sources, logrus.NewEntry(logger))
	svc.now = func() time.Time { return computedAt }
	ctx := context.Background()

	if _, err := svc.Recompute(ctx, "driver-1"); err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	store.raceOnce = true

	p, err := svc.RecordRating(ctx, "driver-1", 5)
	if err != nil {
		t.Fatalf("RecordRating through conflict: %v", err)
	}
	// v1 from the recompute, v2 from the racer, v3 from the retried rating.
	if p.Version != 3 {
		t.Fatalf("version = %d, want 3", p.Version)
	}
	if p.TotalSafetyRatings != 1 {
		t.Fatalf("rating applied %d times", p.TotalSafetyRatings)
	}
}
