// README: Speed violation store backed by PostgreSQL.
package speed

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripguard/internal/types"
)

var ErrNotFound = errors.New("speed violation not found")

// Store persists finished speeding episodes. Create is idempotent on the
// episode ID so retried writes are safe.
type Store interface {
	Create(ctx context.Context, v *Violation) error
	Get(ctx context.Context, id types.ID) (*Violation, error)
	ListByTrip(ctx context.Context, tripID types.ID) ([]*Violation, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, v *Violation) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO speed_violations (
            id, trip_id, driver_id, start_time, end_time, duration_ms,
            max_speed, speed_limit, max_excess, avg_excess,
            loc_lat, loc_lng, severity
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (id) DO NOTHING`,
		string(v.ID), string(v.TripID), string(v.DriverID),
		v.StartTime, v.EndTime, v.Duration.Milliseconds(),
		v.MaxSpeed, v.SpeedLimit, v.MaxExcessSpeed, v.AverageExcessSpeed,
		v.Location.Lat, v.Location.Lng, string(v.Severity),
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Violation, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, trip_id, driver_id, start_time, end_time, duration_ms,
               max_speed, speed_limit, max_excess, avg_excess,
               loc_lat, loc_lng, severity
        FROM speed_violations WHERE id = $1`, string(id),
	)
	return scanViolation(row)
}

func (s *PGStore) ListByTrip(ctx context.Context, tripID types.ID) ([]*Violation, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, trip_id, driver_id, start_time, end_time, duration_ms,
               max_speed, speed_limit, max_excess, avg_excess,
               loc_lat, loc_lng, severity
        FROM speed_violations WHERE trip_id = $1 ORDER BY start_time`, string(tripID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Violation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanViolation(row pgx.Row) (*Violation, error) {
	var v Violation
	var durationMs int64
	err := row.Scan(
		&v.ID, &v.TripID, &v.DriverID, &v.StartTime, &v.EndTime, &durationMs,
		&v.MaxSpeed, &v.SpeedLimit, &v.MaxExcessSpeed, &v.AverageExcessSpeed,
		&v.Location.Lat, &v.Location.Lng, &v.Severity,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v.Duration = time.Duration(durationMs) * time.Millisecond
	return &v, nil
}
