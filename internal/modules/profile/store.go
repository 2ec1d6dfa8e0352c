// README: Safety profile store backed by PostgreSQL. Saves are conditional
// on the profile version.
package profile

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripguard/internal/types"
)

var (
	ErrNotFound = errors.New("safety profile not found")
	ErrConflict = errors.New("safety profile version conflict")
)

type Store interface {
	Get(ctx context.Context, driverID types.ID) (*DriverSafetyProfile, error)
	// Save persists the profile only if the stored version still equals
	// expectedVersion (zero for a fresh row).
	Save(ctx context.Context, p *DriverSafetyProfile, expectedVersion int64) error
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, driverID types.ID) (*DriverSafetyProfile, error) {
	row := s.db.QueryRow(ctx, `
        SELECT driver_id, safety_rating, total_ratings, rating_distribution,
               route_adherence, speed_compliance, active_strikes,
               suspension_status, badges, last_violation, safe_trips_streak,
               version, updated_at
        FROM driver_safety_profiles WHERE driver_id = $1`, string(driverID))

	var p DriverSafetyProfile
	var distribution []byte
	err := row.Scan(
		&p.DriverID, &p.SafetyRating, &p.TotalSafetyRatings, &distribution,
		&p.RouteAdherenceScore, &p.SpeedComplianceScore, &p.ActiveStrikes,
		&p.SuspensionStatus, &p.Badges, &p.LastViolation, &p.SafeTripsStreak,
		&p.Version, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(distribution, &p.RatingDistribution); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) Save(ctx context.Context, p *DriverSafetyProfile, expectedVersion int64) error {
	distribution, err := json.Marshal(p.RatingDistribution)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
        INSERT INTO driver_safety_profiles (
            driver_id, safety_rating, total_ratings, rating_distribution,
            route_adherence, speed_compliance, active_strikes,
            suspension_status, badges, last_violation, safe_trips_streak,
            version, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (driver_id) DO UPDATE SET
            safety_rating = EXCLUDED.safety_rating,
            total_ratings = EXCLUDED.total_ratings,
            rating_distribution = EXCLUDED.rating_distribution,
            route_adherence = EXCLUDED.route_adherence,
            speed_compliance = EXCLUDED.speed_compliance,
            active_strikes = EXCLUDED.active_strikes,
            suspension_status = EXCLUDED.suspension_status,
            badges = EXCLUDED.badges,
            last_violation = EXCLUDED.last_violation,
            safe_trips_streak = EXCLUDED.safe_trips_streak,
            version = EXCLUDED.version,
            updated_at = EXCLUDED.updated_at
        WHERE driver_safety_profiles.version = $14`,
		string(p.DriverID), p.SafetyRating, p.TotalSafetyRatings, distribution,
		p.RouteAdherenceScore, p.SpeedComplianceScore, p.ActiveStrikes,
		string(p.SuspensionStatus), p.Badges, p.LastViolation, p.SafeTripsStreak,
		p.Version, p.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}
