// README: Suspension store backed by PostgreSQL.
package suspension

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripguard/internal/types"
)

var (
	ErrNotFound = errors.New("suspension not found")
	ErrConflict = errors.New("suspension status conflict")
)

type Store interface {
	Create(ctx context.Context, susp *Suspension) error
	Get(ctx context.Context, id types.ID) (*Suspension, error)
	ActiveByDriver(ctx context.Context, driverID types.ID) (*Suspension, error)
	LatestByDriver(ctx context.Context, driverID types.ID) (*Suspension, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]*Suspension, error)
	SetStatus(ctx context.Context, id types.ID, from, to Status, at time.Time, reason *string) error
	Acknowledge(ctx context.Context, id types.ID, at time.Time) error
	// ExpireDue flips overdue temporary suspensions to expired and returns
	// how many it touched.
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, susp *Suspension) error {
	strikeIDs := make([]string, len(susp.StrikeIDs))
	for i, id := range susp.StrikeIDs {
		strikeIDs[i] = string(id)
	}
	_, err := s.db.Exec(ctx, `
        INSERT INTO suspensions (
            id, driver_id, type, reason, strike_ids, started_at, expires_at,
            status, ack_required
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(susp.ID), string(susp.DriverID), string(susp.Type), susp.Reason,
		strikeIDs, susp.StartedAt, susp.ExpiresAt,
		string(susp.Status), susp.AcknowledgmentRequired,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Suspension, error) {
	row := s.db.QueryRow(ctx, selectSuspension+` WHERE id = $1`, string(id))
	return scanSuspension(row)
}

func (s *PGStore) ActiveByDriver(ctx context.Context, driverID types.ID) (*Suspension, error) {
	row := s.db.QueryRow(ctx, selectSuspension+`
        WHERE driver_id = $1 AND status = 'active'
        ORDER BY started_at DESC LIMIT 1`, string(driverID))
	return scanSuspension(row)
}

func (s *PGStore) LatestByDriver(ctx context.Context, driverID types.ID) (*Suspension, error) {
	row := s.db.QueryRow(ctx, selectSuspension+`
        WHERE driver_id = $1 ORDER BY started_at DESC LIMIT 1`, string(driverID))
	return scanSuspension(row)
}

func (s *PGStore) ListByDriver(ctx context.Context, driverID types.ID) ([]*Suspension, error) {
	rows, err := s.db.Query(ctx, selectSuspension+`
        WHERE driver_id = $1 ORDER BY started_at DESC`, string(driverID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Suspension
	for rows.Next() {
		susp, err := scanSuspension(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, susp)
	}
	return out, rows.Err()
}

func (s *PGStore) SetStatus(ctx context.Context, id types.ID, from, to Status, at time.Time, reason *string) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE suspensions
        SET status = $1, lifted_at = $2, lifted_reason = COALESCE($3, lifted_reason)
        WHERE id = $4 AND status = $5`,
		string(to), at, reason, string(id), string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PGStore) Acknowledge(ctx context.Context, id types.ID, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE suspensions SET acknowledged_at = $1
        WHERE id = $2 AND acknowledged_at IS NULL`, at, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE suspensions SET status = 'expired', lifted_at = $1
        WHERE status = 'active' AND type = 'temporary' AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

const selectSuspension = `
        SELECT id, driver_id, type, reason, strike_ids, started_at, expires_at,
               status, ack_required, acknowledged_at, lifted_at, lifted_reason
        FROM suspensions`

func scanSuspension(row pgx.Row) (*Suspension, error) {
	var susp Suspension
	var strikeIDs []string
	err := row.Scan(
		&susp.ID, &susp.DriverID, &susp.Type, &susp.Reason, &strikeIDs,
		&susp.StartedAt, &susp.ExpiresAt, &susp.Status,
		&susp.AcknowledgmentRequired, &susp.AcknowledgedAt,
		&susp.LiftedAt, &susp.LiftedReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	susp.StrikeIDs = make([]types.ID, len(strikeIDs))
	for i, id := range strikeIDs {
		susp.StrikeIDs[i] = types.ID(id)
	}
	return &susp, nil
}
