// README: Strike store backed by PostgreSQL.
package strike

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripguard/internal/types"
)

var (
	ErrNotFound = errors.New("strike not found")
	ErrConflict = errors.New("strike status conflict")
)

type Store interface {
	Create(ctx context.Context, st *Strike) error
	Get(ctx context.Context, id types.ID) (*Strike, error)
	ByViolation(ctx context.Context, violationID types.ID) (*Strike, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]*Strike, error)
	ListActiveByDriver(ctx context.Context, driverID types.ID) ([]*Strike, error)
	SetStatus(ctx context.Context, id types.ID, from, to Status, appealID *types.ID) error
	// ExpireDue flips overdue active strikes to expired and returns the
	// distinct drivers affected.
	ExpireDue(ctx context.Context, now time.Time) ([]types.ID, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, st *Strike) error {
	var violationID *string
	if st.ViolationID != nil {
		v := string(*st.ViolationID)
		violationID = &v
	}
	_, err := s.db.Exec(ctx, `
        INSERT INTO strikes (
            id, driver_id, trip_id, type, reason, severity, violation_id,
            issued_at, expires_at, status
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(st.ID), string(st.DriverID), string(st.TripID),
		st.Type, st.Reason, st.Severity, violationID,
		st.IssuedAt, st.ExpiresAt, string(st.Status),
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Strike, error) {
	row := s.db.QueryRow(ctx, selectStrike+` WHERE id = $1`, string(id))
	return scanStrike(row)
}

func (s *PGStore) ByViolation(ctx context.Context, violationID types.ID) (*Strike, error) {
	row := s.db.QueryRow(ctx, selectStrike+` WHERE violation_id = $1`, string(violationID))
	return scanStrike(row)
}

func (s *PGStore) ListByDriver(ctx context.Context, driverID types.ID) ([]*Strike, error) {
	rows, err := s.db.Query(ctx, selectStrike+`
        WHERE driver_id = $1 ORDER BY issued_at DESC`, string(driverID))
	if err != nil {
		return nil, err
	}
	return collectStrikes(rows)
}

func (s *PGStore) ListActiveByDriver(ctx context.Context, driverID types.ID) ([]*Strike, error) {
	rows, err := s.db.Query(ctx, selectStrike+`
        WHERE driver_id = $1 AND status = 'active' ORDER BY issued_at`, string(driverID))
	if err != nil {
		return nil, err
	}
	return collectStrikes(rows)
}

func (s *PGStore) SetStatus(ctx context.Context, id types.ID, from, to Status, appealID *types.ID) error {
	var appeal *string
	if appealID != nil {
		a := string(*appealID)
		appeal = &a
	}
	tag, err := s.db.Exec(ctx, `
        UPDATE strikes SET status = $1, appeal_id = COALESCE($2, appeal_id)
        WHERE id = $3 AND status = $4`,
		string(to), appeal, string(id), string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PGStore) ExpireDue(ctx context.Context, now time.Time) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
        UPDATE strikes SET status = 'expired'
        WHERE status = 'active' AND expires_at <= $1
        RETURNING driver_id`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[types.ID]bool{}
	var drivers []types.ID
	for rows.Next() {
		var driverID types.ID
		if err := rows.Scan(&driverID); err != nil {
			return nil, err
		}
		if !seen[driverID] {
			seen[driverID] = true
			drivers = append(drivers, driverID)
		}
	}
	return drivers, rows.Err()
}

const selectStrike = `
        SELECT id, driver_id, trip_id, type, reason, severity, violation_id,
               issued_at, expires_at, status, appeal_id
        FROM strikes`

func collectStrikes(rows pgx.Rows) ([]*Strike, error) {
	defer rows.Close()
	var out []*Strike
	for rows.Next() {
		st, err := scanStrike(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanStrike(row pgx.Row) (*Strike, error) {
	var st Strike
	var violationID, appealID *string
	err := row.Scan(
		&st.ID, &st.DriverID, &st.TripID, &st.Type, &st.Reason, &st.Severity,
		&violationID, &st.IssuedAt, &st.ExpiresAt, &st.Status, &appealID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if violationID != nil {
		id := types.ID(*violationID)
		st.ViolationID = &id
	}
	if appealID != nil {
		id := types.ID(*appealID)
		st.AppealID = &id
	}
	return &st, nil
}
