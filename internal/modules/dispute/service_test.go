package dispute

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"tripguard/internal/modules/strike"
	"tripguard/internal/types"
)

var openedAt = time.Date(2026, 5, 1, 16, 0, 0, 0, time.UTC)

type movement struct {
	kind   string
	amount int64
}

type fakeProcessor struct {
	moves []movement
}

func (f *fakeProcessor) HoldFunds(_ context.Context, _, _ types.ID, amount types.Money) error {
	f.moves = append(f.moves, movement{"hold", amount.Amount})
	return nil
}

func (f *fakeProcessor) ReleaseToDriver(_ context.Context, _ types.ID, amount types.Money) error {
	f.moves = append(f.moves, movement{"release", amount.Amount})
	return nil
}

func (f *fakeProcessor) RefundToRider(_ context.Context, _ types.ID, amount types.Money) error {
	f.moves = append(f.moves, movement{"refund", amount.Amount})
	return nil
}

type fakeStrikes struct {
	issued []strike.IssueCommand
}

func (f *fakeStrikes) Issue(_ context.Context, cmd strike.IssueCommand) (*strike.Strike, error) {
	f.issued = append(f.issued, cmd)
	return &strike.Strike{ID: "strike-1", DriverID: cmd.DriverID}, nil
}

func testService(t *testing.T) (*Service, *MemStore, *fakeProcessor, *fakeStrikes) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := NewMemStore()
	proc := &fakeProcessor{}
	strikes := &fakeStrikes{}
	svc := NewService(store, proc, strikes, logrus.NewEntry(logger))
	svc.now = func() time.Time { return openedAt }
	return svc, store, proc, strikes
}

func openHeld(t *testing.T, svc *Service, amount int64) *PaymentDispute {
	t.Helper()
	d, err := svc.OpenAutoHold(context.Background(), "trip-1", "rider-1", "driver-1",
		types.Money{Amount: amount, Currency: "USD"}, "SOS triggered during trip")
	if err != nil {
		t.Fatalf("OpenAutoHold: %v", err)
	}
	return d
}

func resolve(t *testing.T, svc *Service, id types.ID, refund int64, issueStrike bool) (*PaymentDispute, error) {
	t.Helper()
	return svc.Resolve(context.Background(), ResolveCommand{
		ID:           id,
		ReviewerID:   "rev-1",
		RefundAmount: refund,
		Resolution:   "reviewed against trip evidence",
		IssueStrike:  issueStrike,
		At:           openedAt.Add(time.Hour),
	})
}

func TestAutoHoldCreatesHeldEscrow(t *testing.T) {
	svc, _, proc, _ := testService(t)
	d := openHeld(t, svc, 2500)

	if d.Status != StatusPending || !d.AutoHold || d.EscrowID == nil {
		t.Fatalf("dispute = %+v", d)
	}
	esc, err := svc.GetEscrow(context.Background(), *d.EscrowID)
	if err != nil {
		t.Fatalf("GetEscrow: %v", err)
	}
	if esc.Status != EscrowHeld || esc.Amount.Amount != 2500 || esc.DisputeID != d.ID {
		t.Fatalf("escrow = %+v", esc)
	}
	if len(proc.moves) != 1 || proc.moves[0] != (movement{"hold", 2500}) {
		t.Fatalf("processor moves = %+v", proc.moves)
	}

	// A second SOS on the same trip reuses the open dispute.
	again := openHeld(t, svc, 2500)
	if again.ID != d.ID {
		t.Fatal("second auto-hold opened a new dispute")
	}
	if len(proc.moves) != 1 {
		t.Fatalf("funds held twice: %+v", proc.moves)
	}
}

func TestResolveFullRefund(t *testing.T) {
	svc, _, proc, _ := testService(t)
	d := openHeld(t, svc, 2500)
	if err := svc.StartReview(context.Background(), ReviewCommand{ID: d.ID, ReviewerID: "rev-1", At: openedAt}); err != nil {
		t.Fatalf("StartReview: %v", err)
	}

	got, err := resolve(t, svc, d.ID, 2500, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != StatusApproved || got.RefundAmount == nil || got.RefundAmount.Amount != 2500 {
		t.Fatalf("dispute = %+v", got)
	}
	esc, _ := svc.GetEscrow(context.Background(), *got.EscrowID)
	if esc.Status != EscrowRefundedToRider || esc.ReleaseReason == nil {
		t.Fatalf("escrow = %+v", esc)
	}
	last := proc.moves[len(proc.moves)-1]
	if last != (movement{"refund", 2500}) {
		t.Fatalf("moves = %+v", proc.moves)
	}
}

func TestResolveZeroRefundReleasesToDriver(t *testing.T) {
	svc, _, proc, _ := testService(t)
	d := openHeld(t, svc, 2500)
	_ = svc.StartReview(context.Background(), ReviewCommand{ID: d.ID, ReviewerID: "rev-1", At: openedAt})

	got, err := resolve(t, svc, d.ID, 0, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != StatusDenied {
		t.Fatalf("status = %v, want denied", got.Status)
	}
	esc, _ := svc.GetEscrow(context.Background(), *got.EscrowID)
	if esc.Status != EscrowReleasedToDriver {
		t.Fatalf("escrow status = %v", esc.Status)
	}
	last := proc.moves[len(proc.moves)-1]
	if last != (movement{"release", 2500}) {
		t.Fatalf("moves = %+v", proc.moves)
	}
}

// A partial refund splits the escrow; the two movements always sum to the
// held amount.
func TestResolvePartialRefund(t *testing.T) {
	svc, _, proc, _ := testService(t)
	d := openHeld(t, svc, 2500)
	_ = svc.StartReview(context.Background(), ReviewCommand{ID: d.ID, ReviewerID: "rev-1", At: openedAt})

	got, err := resolve(t, svc, d.ID, 1000, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != StatusApproved {
		t.Fatalf("status = %v, want approved", got.Status)
	}
	esc, _ := svc.GetEscrow(context.Background(), *got.EscrowID)
	if esc.Status != EscrowPartiallyRefunded {
		t.Fatalf("escrow status = %v", esc.Status)
	}

	var refunded, released int64
	for _, m := range proc.moves {
		switch m.kind {
		case "refund":
			refunded += m.amount
		case "release":
			released += m.amount
		}
	}
	if refunded != 1000 || released != 1500 {
		t.Fatalf("refunded %d released %d, want 1000/1500", refunded, released)
	}
}

func TestResolveRejectsRefundOutsideAmount(t *testing.T) {
	svc, _, _, _ := testService(t)
	d := openHeld(t, svc, 2500)
	_ = svc.StartReview(context.Background(), ReviewCommand{ID: d.ID, ReviewerID: "rev-1", At: openedAt})

	for _, refund := range []int64{-1, 2501} {
		if _, err := resolve(t, svc, d.ID, refund, false); !errors.Is(err, ErrBadRequest) {
			t.Errorf("refund %d: err = %v, want ErrBadRequest", refund, err)
		}
	}
}

func TestResolveRequiresReviewAndIsTerminal(t *testing.T) {
	svc, _, _, _ := testService(t)
	d := openHeld(t, svc, 2500)

	if _, err := resolve(t, svc, d.ID, 0, false); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("resolve pending err = %v, want ErrInvalidState", err)
	}

	_ = svc.StartReview(context.Background(), ReviewCommand{ID: d.ID, ReviewerID: "rev-1", At: openedAt})
	if _, err := resolve(t, svc, d.ID, 0, false); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := resolve(t, svc, d.ID, 2500, false); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double resolve err = %v, want ErrInvalidState", err)
	}
}

func TestEscalatedDisputeCanStillResolve(t *testing.T) {
	svc, _, _, _ := testService(t)
	d := openHeld(t, svc, 2500)
	ctx := context.Background()

	_ = svc.StartReview(ctx, ReviewCommand{ID: d.ID, ReviewerID: "rev-1", At: openedAt})
	if err := svc.Escalate(ctx, ReviewCommand{ID: d.ID, ReviewerID: "rev-1", At: openedAt}); err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	got, err := resolve(t, svc, d.ID, 2500, false)
	if err != nil {
		t.Fatalf("Resolve after escalation: %v", err)
	}
	if got.Status != StatusApproved {
		t.Fatalf("status = %v, want approved", got.Status)
	}
}

func TestResolutionCanIssueStrike(t *testing.T) {
	svc, _, _, strikes := testService(t)
	d := openHeld(t, svc, 2500)
	_ = svc.StartReview(context.Background(), ReviewCommand{ID: d.ID, ReviewerID: "rev-1", At: openedAt})

	got, err := resolve(t, svc, d.ID, 2500, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !got.StrikeIssued || got.StrikeID == nil {
		t.Fatalf("dispute = %+v", got)
	}
	if len(strikes.issued) != 1 || strikes.issued[0].DriverID != "driver-1" {
		t.Fatalf("strikes = %+v", strikes.issued)
	}
}
