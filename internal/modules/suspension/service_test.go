package suspension

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"tripguard/internal/config"
	"tripguard/internal/types"
)

var startedAt = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func testService(t *testing.T) (*Service, *time.Time) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := NewService(NewMemStore(), config.DefaultPolicy(), logrus.NewEntry(logger))
	now := startedAt
	svc.now = func() time.Time { return now }
	return svc, &now
}

func TestTemporarySuspensionCarriesExpiry(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	id, err := svc.Suspend(ctx, "driver-1", false, "strike threshold", []types.ID{"s1", "s2", "s3"})
	if err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	susp, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if susp.Type != TypeTemporary || susp.Status != StatusActive {
		t.Fatalf("suspension = %+v", susp)
	}
	if susp.ExpiresAt == nil || !susp.ExpiresAt.Equal(startedAt.Add(7*24*time.Hour)) {
		t.Fatalf("expiresAt = %v, want start+7d", susp.ExpiresAt)
	}
	if !susp.AcknowledgmentRequired {
		t.Fatal("acknowledgment not required")
	}
	if len(susp.StrikeIDs) != 3 {
		t.Fatalf("strikeIDs = %v", susp.StrikeIDs)
	}

	status, err := svc.DriverStatusFor(ctx, "driver-1")
	if err != nil || status != DriverSuspendedTemp {
		t.Fatalf("driver status = %v (%v), want suspended_temp", status, err)
	}
}

func TestSuspendIsIdempotentAndUpgrades(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	first, _ := svc.Suspend(ctx, "driver-1", false, "threshold", nil)
	again, err := svc.Suspend(ctx, "driver-1", false, "threshold", nil)
	if err != nil || again != first {
		t.Fatalf("repeat temporary suspend: id=%v err=%v, want %v", again, err, first)
	}

	// Crossing the permanent threshold upgrades.
	perm, err := svc.Suspend(ctx, "driver-1", true, "permanent threshold", nil)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if perm == first {
		t.Fatal("upgrade reused the temporary suspension")
	}
	status, _ := svc.DriverStatusFor(ctx, "driver-1")
	if status != DriverSuspendedPerm {
		t.Fatalf("driver status = %v, want suspended_perm", status)
	}

	// A later temporary request never downgrades a permanent suspension.
	demote, err := svc.Suspend(ctx, "driver-1", false, "threshold", nil)
	if err != nil || demote != perm {
		t.Fatalf("temporary over permanent: id=%v err=%v, want %v", demote, err, perm)
	}
	if susp, _ := svc.Get(ctx, perm); susp.ExpiresAt != nil {
		t.Fatalf("permanent suspension has expiry: %+v", susp)
	}
}

func TestLiftAutoSkipsPermanent(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	id, _ := svc.Suspend(ctx, "driver-1", true, "permanent threshold", nil)
	if err := svc.LiftAuto(ctx, "driver-1", "re-evaluated"); err != nil {
		t.Fatalf("LiftAuto: %v", err)
	}
	susp, _ := svc.Get(ctx, id)
	if susp.Status != StatusActive {
		t.Fatalf("permanent suspension auto-lifted: %+v", susp)
	}

	// Explicit lift with a reason is the only way out.
	if err := svc.Lift(ctx, LiftCommand{SuspensionID: id, At: startedAt}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("lift without reason err = %v, want ErrBadRequest", err)
	}
	if err := svc.Lift(ctx, LiftCommand{SuspensionID: id, Reason: "appeal approved", At: startedAt}); err != nil {
		t.Fatalf("Lift: %v", err)
	}
	susp, _ = svc.Get(ctx, id)
	if susp.Status != StatusLifted || susp.LiftedReason == nil {
		t.Fatalf("after lift: %+v", susp)
	}

	if err := svc.Lift(ctx, LiftCommand{SuspensionID: id, Reason: "again", At: startedAt}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double lift err = %v, want ErrInvalidState", err)
	}
}

func TestLiftAutoEndsTemporary(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	id, _ := svc.Suspend(ctx, "driver-1", false, "threshold", nil)
	if err := svc.LiftAuto(ctx, "driver-1", "strikes expired"); err != nil {
		t.Fatalf("LiftAuto: %v", err)
	}
	susp, _ := svc.Get(ctx, id)
	if susp.Status != StatusLifted {
		t.Fatalf("status = %v, want lifted", susp.Status)
	}

	// No active suspension left: LiftAuto is a no-op, not an error.
	if err := svc.LiftAuto(ctx, "driver-1", "again"); err != nil {
		t.Fatalf("LiftAuto on clean driver: %v", err)
	}
}

func TestTemporaryExpiresViaSweep(t *testing.T) {
	svc, now := testService(t)
	ctx := context.Background()

	id, _ := svc.Suspend(ctx, "driver-1", false, "threshold", nil)

	*now = startedAt.Add(6 * 24 * time.Hour)
	if n, _ := svc.ExpireDue(ctx); n != 0 {
		t.Fatalf("expired %d suspensions before the window", n)
	}

	*now = startedAt.Add(8 * 24 * time.Hour)
	n, err := svc.ExpireDue(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ExpireDue = %d (%v), want 1", n, err)
	}
	susp, _ := svc.Get(ctx, id)
	if susp.Status != StatusExpired {
		t.Fatalf("status = %v, want expired", susp.Status)
	}
	status, _ := svc.DriverStatusFor(ctx, "driver-1")
	if status != DriverActive {
		t.Fatalf("driver status = %v, want active", status)
	}
}

// Eligibility stays gated on acknowledgment even after the suspension ends.
func TestEligibilityRequiresAcknowledgment(t *testing.T) {
	svc, now := testService(t)
	ctx := context.Background()

	if ok, _ := svc.IsEligible(ctx, "driver-1"); !ok {
		t.Fatal("clean driver must be eligible")
	}

	id, _ := svc.Suspend(ctx, "driver-1", false, "threshold", nil)
	if ok, _ := svc.IsEligible(ctx, "driver-1"); ok {
		t.Fatal("suspended driver must be ineligible")
	}

	*now = startedAt.Add(8 * 24 * time.Hour)
	if _, err := svc.ExpireDue(ctx); err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if ok, _ := svc.IsEligible(ctx, "driver-1"); ok {
		t.Fatal("unacknowledged suspension must keep the driver ineligible")
	}

	if err := svc.Acknowledge(ctx, id, *now); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if ok, _ := svc.IsEligible(ctx, "driver-1"); !ok {
		t.Fatal("acknowledged driver must be eligible again")
	}
}
