// README: Appeal store backed by PostgreSQL.
package appeal

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
	ErrNotFound = errors.New("appeal not found")
	ErrConflict = errors.New("appeal status conflict")
)

type Store interface {
	Create(ctx context.Context, a *Appeal) error
	Get(ctx context.Context, id types.ID) (*Appeal, error)
	// OpenByTarget finds a pending or under-review appeal for the contested
	// record.
	OpenByTarget(ctx context.Context, target types.ID) (*Appeal, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, reviewer types.ID, resolution *string, at time.Time) error
	ListByDriver(ctx context.Context, driverID types.ID) ([]*Appeal, error)
	ListByStatus(ctx context.Context, status Status) ([]*Appeal, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, a *Appeal) error {
	evidence, err := violation.MarshalEvidence(a.Evidence)
	if err != nil {
		return err
	}
	var strikeID, suspensionID *string
	if a.StrikeID != nil {
		v := string(*a.StrikeID)
		strikeID = &v
	}
	if a.SuspensionID != nil {
		v := string(*a.SuspensionID)
		suspensionID = &v
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO appeals (
            id, driver_id, strike_id, suspension_id, reason, evidence,
            submitted_at, status
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(a.ID), string(a.DriverID), strikeID, suspensionID,
		a.Reason, evidence, a.SubmittedAt, string(a.Status),
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Appeal, error) {
	row := s.db.QueryRow(ctx, selectAppeal+` WHERE id = $1`, string(id))
	return scanAppeal(row)
}

func (s *PGStore) OpenByTarget(ctx context.Context, target types.ID) (*Appeal, error) {
	row := s.db.QueryRow(ctx, selectAppeal+`
        WHERE (strike_id = $1 OR suspension_id = $1)
          AND status IN ('pending', 'under_review')
        LIMIT 1`, string(target))
	return scanAppeal(row)
}

func (s *PGStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, reviewer types.ID, resolution *string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE appeals
        SET status = $1, reviewed_by = $2, reviewed_at = $3, resolution = COALESCE($4, resolution)
        WHERE id = $5 AND status = $6`,
		string(to), string(reviewer), at, resolution, string(id), string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PGStore) ListByDriver(ctx context.Context, driverID types.ID) ([]*Appeal, error) {
	rows, err := s.db.Query(ctx, selectAppeal+`
        WHERE driver_id = $1 ORDER BY submitted_at DESC`, string(driverID))
	if err != nil {
		return nil, err
	}
	return collectAppeals(rows)
}

func (s *PGStore) ListByStatus(ctx context.Context, status Status) ([]*Appeal, error) {
	rows, err := s.db.Query(ctx, selectAppeal+`
        WHERE status = $1 ORDER BY submitted_at`, string(status))
	if err != nil {
		return nil, err
	}
	return collectAppeals(rows)
}

const selectAppeal = `
        SELECT id, driver_id, strike_id, suspension_id, reason, evidence,
               submitted_at, status, reviewed_by, reviewed_at, resolution
        FROM appeals`

func collectAppeals(rows pgx.Rows) ([]*Appeal, error) {
	defer rows.Close()
	var out []*Appeal
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAppeal(row pgx.Row) (*Appeal, error) {
	var a Appeal
	var strikeID, suspensionID, reviewedBy *string
	var evidence []byte
	err := row.Scan(
		&a.ID, &a.DriverID, &strikeID, &suspensionID, &a.Reason, &evidence,
		&a.SubmittedAt, &a.Status, &reviewedBy, &a.ReviewedAt, &a.Resolution,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.Evidence, err = violation.UnmarshalEvidence(evidence); err != nil {
		return nil, err
	}
	if strikeID != nil {
		id := types.ID(*strikeID)
		a.StrikeID = &id
	}
	if suspensionID != nil {
		id := types.ID(*suspensionID)
		a.SuspensionID = &id
	}
	if reviewedBy != nil {
		id := types.ID(*reviewedBy)
		a.ReviewedBy = &id
	}
	return &a, nil
}
