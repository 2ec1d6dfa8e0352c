// README: Dispute and escrow store backed by PostgreSQL. Cross-record writes
// commit in a single transaction.
package dispute

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripguard/internal/modules/violation"
	"tripguard/internal/types"
)

var (
	ErrNotFound = errors.New("dispute not found")
	ErrConflict = errors.New("dispute status conflict")
)

// Resolution carries the paired dispute and escrow updates of a settlement.
type Resolution struct {
	DisputeID     types.ID
	FromStatus    Status
	ToStatus      Status
	RefundAmount  types.Money
	Resolution    string
	EscrowID      *types.ID
	EscrowStatus  EscrowStatus
	ReleaseReason string
	At            time.Time
}

type Store interface {
	// CreateWithEscrow writes the dispute and, when esc is non-nil, its
	// escrow atomically.
	CreateWithEscrow(ctx context.Context, d *PaymentDispute, esc *PaymentEscrow) error
	GetDispute(ctx context.Context, id types.ID) (*PaymentDispute, error)
	GetEscrow(ctx context.Context, id types.ID) (*PaymentEscrow, error)
	OpenByTrip(ctx context.Context, tripID types.ID) (*PaymentDispute, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, at time.Time) error
	// Resolve applies the dispute and escrow updates atomically; a partial
	// settlement state never becomes visible.
	Resolve(ctx context.Context, r Resolution) error
	SetStrike(ctx context.Context, id types.ID, strikeID types.ID) error
	ListByStatus(ctx context.Context, status Status) ([]*PaymentDispute, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateWithEscrow(ctx context.Context, d *PaymentDispute, esc *PaymentEscrow) error {
	evidence, err := violation.MarshalEvidence(d.Evidence)
	if err != nil {
		return err
	}
	var escrowID *string
	if d.EscrowID != nil {
		v := string(*d.EscrowID)
		escrowID = &v
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO payment_disputes (
                id, trip_id, rider_id, driver_id, amount, currency, reason,
                evidence, status, auto_hold, escrow_id, created_at, updated_at
            ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			string(d.ID), string(d.TripID), string(d.RiderID), string(d.DriverID),
			d.Amount.Amount, d.Amount.Currency, d.Reason, evidence,
			string(d.Status), d.AutoHold, escrowID, d.CreatedAt, d.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if esc == nil {
			return nil
		}
		_, err = tx.Exec(ctx, `
            INSERT INTO payment_escrows (
                id, trip_id, dispute_id, amount, currency, status, created_at
            ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			string(esc.ID), string(esc.TripID), string(esc.DisputeID),
			esc.Amount.Amount, esc.Amount.Currency, string(esc.Status), esc.CreatedAt,
		)
		return err
	})
}

func (s *PGStore) GetDispute(ctx context.Context, id types.ID) (*PaymentDispute, error) {
	row := s.db.QueryRow(ctx, selectDispute+` WHERE id = $1`, string(id))
	return scanDispute(row)
}

func (s *PGStore) GetEscrow(ctx context.Context, id types.ID) (*PaymentEscrow, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, trip_id, dispute_id, amount, currency, status, created_at,
               released_at, release_reason
        FROM payment_escrows WHERE id = $1`, string(id))
	var esc PaymentEscrow
	err := row.Scan(
		&esc.ID, &esc.TripID, &esc.DisputeID, &esc.Amount.Amount, &esc.Amount.Currency,
		&esc.Status, &esc.CreatedAt, &esc.ReleasedAt, &esc.ReleaseReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &esc, nil
}

func (s *PGStore) OpenByTrip(ctx context.Context, tripID types.ID) (*PaymentDispute, error) {
	row := s.db.QueryRow(ctx, selectDispute+`
        WHERE trip_id = $1 AND status IN ('pending', 'under_review', 'escalated')
        LIMIT 1`, string(tripID))
	return scanDispute(row)
}

func (s *PGStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE payment_disputes SET status = $1, updated_at = $2
        WHERE id = $3 AND status = $4`,
		string(to), at, string(id), string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PGStore) Resolve(ctx context.Context, r Resolution) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE payment_disputes
            SET status = $1, resolution = $2, refund_amount = $3,
                updated_at = $4, resolved_at = $4
            WHERE id = $5 AND status = $6`,
			string(r.ToStatus), r.Resolution, r.RefundAmount.Amount,
			r.At, string(r.DisputeID), string(r.FromStatus))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
		if r.EscrowID == nil {
			return nil
		}
		tag, err = tx.Exec(ctx, `
            UPDATE payment_escrows
            SET status = $1, released_at = $2, release_reason = $3
            WHERE id = $4 AND status = 'held'`,
			string(r.EscrowStatus), r.At, r.ReleaseReason, string(*r.EscrowID))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
		return nil
	})
}

func (s *PGStore) SetStrike(ctx context.Context, id types.ID, strikeID types.ID) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE payment_disputes SET strike_issued = TRUE, strike_id = $1 WHERE id = $2`,
		string(strikeID), string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListByStatus(ctx context.Context, status Status) ([]*PaymentDispute, error) {
	rows, err := s.db.Query(ctx, selectDispute+`
        WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PaymentDispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const selectDispute = `
        SELECT id, trip_id, rider_id, driver_id, amount, currency, reason,
               evidence, status, auto_hold, escrow_id, resolution, refund_amount,
               strike_issued, strike_id, created_at, updated_at, resolved_at
        FROM payment_disputes`

func scanDispute(row pgx.Row) (*PaymentDispute, error) {
	var d PaymentDispute
	var evidence []byte
	var escrowID, strikeID *string
	var refund *int64
	err := row.Scan(
		&d.ID, &d.TripID, &d.RiderID, &d.DriverID, &d.Amount.Amount, &d.Amount.Currency,
		&d.Reason, &evidence, &d.Status, &d.AutoHold, &escrowID, &d.Resolution,
		&refund, &d.StrikeIssued, &strikeID, &d.CreatedAt, &d.UpdatedAt, &d.ResolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if d.Evidence, err = violation.UnmarshalEvidence(evidence); err != nil {
		return nil, err
	}
	if escrowID != nil {
		id := types.ID(*escrowID)
		d.EscrowID = &id
	}
	if strikeID != nil {
		id := types.ID(*strikeID)
		d.StrikeID = &id
	}
	if refund != nil {
		d.RefundAmount = &types.Money{Amount: *refund, Currency: d.Amount.Currency}
	}
	return &d, nil
}
