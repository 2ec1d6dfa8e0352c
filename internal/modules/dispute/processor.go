// README: Payment execution port. Real settlement lives outside this system.
package dispute

import (
	"context"

	"github.com/sirupsen/logrus"

	"tripguard/internal/types"
)

// PaymentProcessor executes money movement decided here. Implementations
// must be idempotent per escrow ID.
type PaymentProcessor interface {
	HoldFunds(ctx context.Context, escrowID, tripID types.ID, amount types.Money) error
	ReleaseToDriver(ctx context.Context, escrowID types.ID, amount types.Money) error
	RefundToRider(ctx context.Context, escrowID types.ID, amount types.Money) error
}

// LogProcessor records the movement it would perform. Used in development
// and tests.
type LogProcessor struct {
	Log *logrus.Entry
}

func (p *LogProcessor) HoldFunds(_ context.Context, escrowID, tripID types.ID, amount types.Money) error {
	p.Log.WithFields(logrus.Fields{
		"escrow_id": escrowID, "trip_id": tripID, "amount": amount.Amount, "currency": amount.Currency,
	}).Info("hold funds")
	return nil
}

func (p *LogProcessor) ReleaseToDriver(_ context.Context, escrowID types.ID, amount types.Money) error {
	p.Log.WithFields(logrus.Fields{
		"escrow_id": escrowID, "amount": amount.Amount,
	}).Info("release to driver")
	return nil
}

func (p *LogProcessor) RefundToRider(_ context.Context, escrowID types.ID, amount types.Money) error {
	p.Log.WithFields(logrus.Fields{
		"escrow_id": escrowID, "amount": amount.Amount,
	}).Info("refund to rider")
	return nil
}
