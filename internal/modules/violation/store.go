// README: Safety violation store backed by PostgreSQL.
package violation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripguard/internal/types"
)

var (
	ErrNotFound = errors.New("safety violation not found")
	ErrConflict = errors.New("safety violation status conflict")
)

// Store persists violation records. Create is idempotent on the violation ID;
// UpdateStatus is a compare-and-set on the current status.
type Store interface {
	Create(ctx context.Context, v *SafetyViolation) error
	Get(ctx context.Context, id types.ID) (*SafetyViolation, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, reviewer types.ID, resolution *string, at time.Time) error
	SetSummary(ctx context.Context, id types.ID, summary string) error
	SetStrike(ctx context.Context, id types.ID, strikeID types.ID) error
	ListByDriver(ctx context.Context, driverID types.ID) ([]*SafetyViolation, error)
	ListByStatus(ctx context.Context, status Status) ([]*SafetyViolation, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, v *SafetyViolation) error {
	evidence, err := MarshalEvidence(v.Evidence)
	if err != nil {
		return err
	}
	var lat, lng *float64
	if v.Location != nil {
		lat, lng = &v.Location.Lat, &v.Location.Lng
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO safety_violations (
            id, trip_id, driver_id, rider_id, type, severity, description,
            evidence, ts, loc_lat, loc_lng, status
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (id) DO NOTHING`,
		string(v.ID), string(v.TripID), string(v.DriverID), string(v.RiderID),
		string(v.Type), string(v.Severity), v.Description,
		evidence, v.Timestamp, lat, lng, string(v.Status),
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*SafetyViolation, error) {
	row := s.db.QueryRow(ctx, selectViolation+` WHERE id = $1`, string(id))
	return scanSafetyViolation(row)
}

func (s *PGStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, reviewer types.ID, resolution *string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE safety_violations
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

func (s *PGStore) SetSummary(ctx context.Context, id types.ID, summary string) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE safety_violations SET summary = $1 WHERE id = $2`, summary, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetStrike(ctx context.Context, id types.ID, strikeID types.ID) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE safety_violations SET strike_issued = TRUE, strike_id = $1 WHERE id = $2`,
		string(strikeID), string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListByDriver(ctx context.Context, driverID types.ID) ([]*SafetyViolation, error) {
	rows, err := s.db.Query(ctx, selectViolation+`
        WHERE driver_id = $1 ORDER BY ts DESC`, string(driverID))
	if err != nil {
		return nil, err
	}
	return collectViolations(rows)
}

func (s *PGStore) ListByStatus(ctx context.Context, status Status) ([]*SafetyViolation, error) {
	rows, err := s.db.Query(ctx, selectViolation+`
        WHERE status = $1 ORDER BY ts`, string(status))
	if err != nil {
		return nil, err
	}
	return collectViolations(rows)
}

const selectViolation = `
        SELECT id, trip_id, driver_id, rider_id, type, severity, description,
               evidence, ts, loc_lat, loc_lng, summary, strike_issued, strike_id,
               status, resolution, reviewed_by, reviewed_at
        FROM safety_violations`

func collectViolations(rows pgx.Rows) ([]*SafetyViolation, error) {
	defer rows.Close()
	var out []*SafetyViolation
	for rows.Next() {
		v, err := scanSafetyViolation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanSafetyViolation(row pgx.Row) (*SafetyViolation, error) {
	var v SafetyViolation
	var evidence []byte
	var lat, lng *float64
	var summary *string
	var strikeID, reviewedBy *string
	err := row.Scan(
		&v.ID, &v.TripID, &v.DriverID, &v.RiderID, &v.Type, &v.Severity, &v.Description,
		&evidence, &v.Timestamp, &lat, &lng, &summary, &v.StrikeIssued, &strikeID,
		&v.Status, &v.Resolution, &reviewedBy, &v.ReviewedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if v.Evidence, err = UnmarshalEvidence(evidence); err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		v.Location = &types.Point{Lat: *lat, Lng: *lng}
	}
	if summary != nil {
		v.Summary = *summary
	}
	if strikeID != nil {
		id := types.ID(*strikeID)
		v.StrikeID = &id
	}
	if reviewedBy != nil {
		id := types.ID(*reviewedBy)
		v.ReviewedBy = &id
	}
	return &v, nil
}
