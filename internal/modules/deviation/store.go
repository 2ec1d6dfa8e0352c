// README: Route deviation store backed by PostgreSQL.
package deviation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripguard/internal/types"
)

var ErrNotFound = errors.New("route deviation not found")

// Store persists deviation episodes. Create is idempotent on the episode ID.
type Store interface {
	Create(ctx context.Context, d *Deviation) error
	Get(ctx context.Context, id types.ID) (*Deviation, error)
	SetResponse(ctx context.Context, id types.ID, resp RiderResponse) error
	SetAutoAlert(ctx context.Context, id types.ID) error
	Resolve(ctx context.Context, id types.ID, at time.Time, duration time.Duration) error
	ActiveByTrip(ctx context.Context, tripID types.ID) (*Deviation, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, d *Deviation) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO route_deviations (
            id, trip_id, ts, planned_lat, planned_lng, actual_lat, actual_lng,
            deviation_m, duration_ms, rider_response, alert_shown, auto_alert_sent, resolved
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (id) DO NOTHING`,
		string(d.ID), string(d.TripID), d.Timestamp,
		d.PlannedLocation.Lat, d.PlannedLocation.Lng,
		d.ActualLocation.Lat, d.ActualLocation.Lng,
		d.DeviationDistance, d.Duration.Milliseconds(),
		string(d.RiderResponse), d.AlertShown, d.AutoAlertSent, d.Resolved,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Deviation, error) {
	row := s.db.QueryRow(ctx, selectDeviation+` WHERE id = $1`, string(id))
	return scanDeviation(row)
}

func (s *PGStore) SetResponse(ctx context.Context, id types.ID, resp RiderResponse) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE route_deviations SET rider_response = $1 WHERE id = $2`,
		string(resp), string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetAutoAlert(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE route_deviations SET auto_alert_sent = TRUE WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Resolve(ctx context.Context, id types.ID, at time.Time, duration time.Duration) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE route_deviations
        SET resolved = TRUE, resolved_at = $1, duration_ms = $2
        WHERE id = $3`,
		at, duration.Milliseconds(), string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ActiveByTrip(ctx context.Context, tripID types.ID) (*Deviation, error) {
	row := s.db.QueryRow(ctx, selectDeviation+`
        WHERE trip_id = $1 AND NOT resolved
        ORDER BY ts DESC LIMIT 1`, string(tripID))
	return scanDeviation(row)
}

const selectDeviation = `
        SELECT id, trip_id, ts, planned_lat, planned_lng, actual_lat, actual_lng,
               deviation_m, duration_ms, rider_response, alert_shown,
               auto_alert_sent, resolved, resolved_at
        FROM route_deviations`

func scanDeviation(row pgx.Row) (*Deviation, error) {
	var d Deviation
	var durationMs int64
	var resolvedAt *time.Time
	err := row.Scan(
		&d.ID, &d.TripID, &d.Timestamp,
		&d.PlannedLocation.Lat, &d.PlannedLocation.Lng,
		&d.ActualLocation.Lat, &d.ActualLocation.Lng,
		&d.DeviationDistance, &durationMs, &d.RiderResponse,
		&d.AlertShown, &d.AutoAlertSent, &d.Resolved, &resolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Duration = time.Duration(durationMs) * time.Millisecond
	d.ResolvedAt = resolvedAt
	return &d, nil
}
