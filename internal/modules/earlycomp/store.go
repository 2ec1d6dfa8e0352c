// README: Early completion store backed by PostgreSQL.
package earlycomp

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripguard/internal/types"
)

var ErrNotFound = errors.New("early completion record not found")

// Store persists completion-check records. Create is idempotent on the
// per-trip record ID.
type Store interface {
	Create(ctx context.Context, ec *EarlyCompletion) error
	Get(ctx context.Context, id types.ID) (*EarlyCompletion, error)
	ByTrip(ctx context.Context, tripID types.ID) (*EarlyCompletion, error)
	SetResponse(ctx context.Context, id types.ID, resp Response) error
	MarkManualReview(ctx context.Context, id types.ID) error
	Resolve(ctx context.Context, id types.ID, at time.Time, releaseHold bool) error
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*EarlyCompletion, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, ec *EarlyCompletion) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO early_completions (
            id, trip_id, driver_id, ts, dest_lat, dest_lng, actual_lat, actual_lng,
            distance_m, rider_response, payment_held, manual_review, resolved
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (id) DO NOTHING`,
		string(ec.ID), string(ec.TripID), string(ec.DriverID), ec.Timestamp,
		ec.DestinationLocation.Lat, ec.DestinationLocation.Lng,
		ec.ActualLocation.Lat, ec.ActualLocation.Lng,
		ec.DistanceFromDestination, string(ec.RiderResponse),
		ec.PaymentHeld, ec.ManualReview, ec.Resolved,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*EarlyCompletion, error) {
	row := s.db.QueryRow(ctx, selectEarlyCompletion+` WHERE id = $1`, string(id))
	return scanEarlyCompletion(row)
}

func (s *PGStore) ByTrip(ctx context.Context, tripID types.ID) (*EarlyCompletion, error) {
	row := s.db.QueryRow(ctx, selectEarlyCompletion+` WHERE trip_id = $1`, string(tripID))
	return scanEarlyCompletion(row)
}

func (s *PGStore) SetResponse(ctx context.Context, id types.ID, resp Response) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE early_completions SET rider_response = $1 WHERE id = $2`,
		string(resp), string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) MarkManualReview(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE early_completions SET manual_review = TRUE WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Resolve(ctx context.Context, id types.ID, at time.Time, releaseHold bool) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE early_completions
        SET resolved = TRUE, resolved_at = $1, payment_held = payment_held AND NOT $2
        WHERE id = $3`,
		at, releaseHold, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*EarlyCompletion, error) {
	rows, err := s.db.Query(ctx, selectEarlyCompletion+`
        WHERE rider_response = 'pending' AND NOT resolved AND ts < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*EarlyCompletion
	for rows.Next() {
		ec, err := scanEarlyCompletion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ec)
	}
	return out, rows.Err()
}

const selectEarlyCompletion = `
        SELECT id, trip_id, driver_id, ts, dest_lat, dest_lng, actual_lat, actual_lng,
               distance_m, rider_response, payment_held, manual_review, resolved, resolved_at
        FROM early_completions`

func scanEarlyCompletion(row pgx.Row) (*EarlyCompletion, error) {
	var ec EarlyCompletion
	var resolvedAt *time.Time
	err := row.Scan(
		&ec.ID, &ec.TripID, &ec.DriverID, &ec.Timestamp,
		&ec.DestinationLocation.Lat, &ec.DestinationLocation.Lng,
		&ec.ActualLocation.Lat, &ec.ActualLocation.Lng,
		&ec.DistanceFromDestination, &ec.RiderResponse,
		&ec.PaymentHeld, &ec.ManualReview, &ec.Resolved, &resolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ec.ResolvedAt = resolvedAt
	return &ec, nil
}
