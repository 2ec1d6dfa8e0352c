package strike

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"tripguard/internal/config"
	"tripguard/internal/modules/violation"
	"tripguard/internal/types"
)

var issuedAt = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

type suspendCall struct {
	driverID  types.ID
	permanent bool
	strikes   int
}

type fakeSuspender struct {
	suspends []suspendCall
	lifts    []types.ID
}

func (f *fakeSuspender) Suspend(_ context.Context, driverID types.ID, permanent bool, _ string, strikeIDs []types.ID) (types.ID, error) {
	f.suspends = append(f.suspends, suspendCall{driverID: driverID, permanent: permanent, strikes: len(strikeIDs)})
	return "susp-1", nil
}

func (f *fakeSuspender) LiftAuto(_ context.Context, driverID types.ID, _ string) error {
	f.lifts = append(f.lifts, driverID)
	return nil
}

func testService(t *testing.T) (*Service, *fakeSuspender, *time.Time) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	susp := &fakeSuspender{}
	svc := NewService(NewMemStore(), susp, config.DefaultPolicy(), logrus.NewEntry(logger))
	now := issuedAt
	svc.now = func() time.Time { return now }
	return svc, susp, &now
}

func issue(t *testing.T, svc *Service, driverID types.ID, severity string, violationID string) *Strike {
	t.Helper()
	var vid *types.ID
	if violationID != "" {
		id := types.ID(violationID)
		vid = &id
	}
	st, err := svc.Issue(context.Background(), IssueCommand{
		DriverID:    driverID,
		TripID:      "trip-1",
		Type:        "speeding",
		Reason:      "confirmed speeding violation",
		Severity:    severity,
		ViolationID: vid,
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return st
}

func TestExpiryIsExactlyNinetyDays(t *testing.T) {
	svc, _, _ := testService(t)
	st := issue(t, svc, "driver-1", "minor", "")
	if got, want := st.ExpiresAt, issuedAt.Add(90*24*time.Hour); !got.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", got, want)
	}
}

func TestIssueDeduplicatesOnViolation(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	first := issue(t, svc, "driver-1", "moderate", "viol-1")
	second := issue(t, svc, "driver-1", "moderate", "viol-1")
	if second.ID != first.ID {
		t.Fatalf("retried issuance created a second strike")
	}
	_, weighted, err := svc.ActiveStrikes(ctx, "driver-1")
	if err != nil {
		t.Fatalf("ActiveStrikes: %v", err)
	}
	if weighted != 1 {
		t.Fatalf("weighted count = %d, want 1", weighted)
	}
}

func TestThirdStrikeTriggersSuspension(t *testing.T) {
	svc, susp, _ := testService(t)

	issue(t, svc, "driver-1", "minor", "viol-1")
	issue(t, svc, "driver-1", "minor", "viol-2")
	if len(susp.suspends) != 0 {
		t.Fatalf("suspended below threshold: %+v", susp.suspends)
	}

	issue(t, svc, "driver-1", "minor", "viol-3")
	if len(susp.suspends) != 1 {
		t.Fatalf("suspend calls = %d, want 1", len(susp.suspends))
	}
	call := susp.suspends[0]
	if call.permanent || call.driverID != "driver-1" || call.strikes != 3 {
		t.Fatalf("unexpected suspension: %+v", call)
	}
}

// A severe strike counts double, so two severe strikes plus one minor clear
// the permanent threshold of five.
func TestSevereStrikesCountDouble(t *testing.T) {
	svc, susp, _ := testService(t)

	issue(t, svc, "driver-1", "severe", "viol-1")
	issue(t, svc, "driver-1", "severe", "viol-2")
	// 4 weighted: already past the temporary threshold.
	if n := len(susp.suspends); n != 1 || susp.suspends[0].permanent {
		t.Fatalf("after two severe strikes: %+v", susp.suspends)
	}

	issue(t, svc, "driver-1", "minor", "viol-3")
	last := susp.suspends[len(susp.suspends)-1]
	if !last.permanent {
		t.Fatalf("5 weighted strikes must suspend permanently: %+v", susp.suspends)
	}
}

func TestExpiredStrikesExcludedLazily(t *testing.T) {
	svc, susp, now := testService(t)

	issue(t, svc, "driver-1", "minor", "viol-1")
	issue(t, svc, "driver-1", "minor", "viol-2")

	// 91 days on, both strikes are past expiry. No sweep has run, but the
	// third strike must not count them.
	*now = issuedAt.Add(91 * 24 * time.Hour)
	issue(t, svc, "driver-1", "minor", "viol-3")

	if len(susp.suspends) != 0 {
		t.Fatalf("expired strikes counted toward suspension: %+v", susp.suspends)
	}
	active, weighted, err := svc.ActiveStrikes(context.Background(), "driver-1")
	if err != nil {
		t.Fatalf("ActiveStrikes: %v", err)
	}
	if len(active) != 1 || weighted != 1 {
		t.Fatalf("active = %d weighted = %d, want 1/1", len(active), weighted)
	}
}

func TestExpirySweepPersistsAndReEvaluates(t *testing.T) {
	svc, susp, now := testService(t)
	ctx := context.Background()

	issue(t, svc, "driver-1", "minor", "viol-1")
	issue(t, svc, "driver-1", "minor", "viol-2")
	issue(t, svc, "driver-1", "minor", "viol-3") // suspended here

	*now = issuedAt.Add(91 * 24 * time.Hour)
	if err := svc.ExpireDue(ctx); err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}

	all, _ := svc.ListByDriver(ctx, "driver-1")
	for _, st := range all {
		if st.Status != StatusExpired {
			t.Fatalf("strike %s status = %s, want expired", st.ID, st.Status)
		}
	}
	// Re-evaluation after the sweep lifts the threshold suspension.
	if len(susp.lifts) == 0 || susp.lifts[len(susp.lifts)-1] != "driver-1" {
		t.Fatalf("sweep did not lift the suspension: %+v", susp.lifts)
	}
}

// Removing the threshold-crossing strike lifts the suspension it caused.
func TestAppealedStrikeLiftsSuspension(t *testing.T) {
	svc, susp, _ := testService(t)
	ctx := context.Background()

	issue(t, svc, "driver-1", "minor", "viol-1")
	issue(t, svc, "driver-1", "minor", "viol-2")
	third := issue(t, svc, "driver-1", "minor", "viol-3")
	if len(susp.suspends) != 1 {
		t.Fatalf("setup: suspends = %+v", susp.suspends)
	}

	if err := svc.MarkAppealed(ctx, third.ID, "appeal-1"); err != nil {
		t.Fatalf("MarkAppealed: %v", err)
	}
	got, _ := svc.Get(ctx, third.ID)
	if got.Status != StatusAppealed || got.AppealID == nil || *got.AppealID != "appeal-1" {
		t.Fatalf("strike after appeal: %+v", got)
	}
	if len(susp.lifts) == 0 {
		t.Fatal("appeal approval did not lift the suspension")
	}

	// A settled strike cannot be retired twice.
	if err := svc.Remove(ctx, third.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double retirement err = %v, want ErrInvalidState", err)
	}
}

func TestIssueForViolation(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	v := &violation.SafetyViolation{
		ID:          "viol-abc",
		TripID:      "trip-1",
		DriverID:    "driver-1",
		Type:        violation.TypeSpeeding,
		Severity:    violation.SeveritySevere,
		Description: "sustained 25 km/h over the posted limit",
	}
	id, err := svc.IssueForViolation(ctx, v)
	if err != nil {
		t.Fatalf("IssueForViolation: %v", err)
	}
	st, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.ViolationID == nil || *st.ViolationID != v.ID || st.Severity != "severe" {
		t.Fatalf("strike = %+v", st)
	}
}
