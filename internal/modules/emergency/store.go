// README: Emergency alert and contact stores backed by PostgreSQL.
package emergency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripguard/internal/notify"
	"tripguard/internal/types"
)

var ErrNotFound = errors.New("emergency alert not found")

type Store interface {
	Create(ctx context.Context, alert *EmergencyAlert) error
	Get(ctx context.Context, id types.ID) (*EmergencyAlert, error)
	SetContactsNotified(ctx context.Context, id types.ID, contacts []string) error
	SetAuthoritiesContacted(ctx context.Context, id types.ID) error
	Resolve(ctx context.Context, id types.ID, at time.Time, resolution string) error
	ListOpen(ctx context.Context) ([]*EmergencyAlert, error)
	ListByTrip(ctx context.Context, tripID types.ID) ([]*EmergencyAlert, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, alert *EmergencyAlert) error {
	snapshot, err := json.Marshal(alert.Context)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO emergency_alerts (
            id, trip_id, user_id, user_type, type, ts, loc_lat, loc_lng,
            context, contacts_notified, authorities_contacted, resolved
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(alert.ID), string(alert.TripID), string(alert.UserID),
		string(alert.UserType), string(alert.Type), alert.Timestamp,
		alert.Location.Lat, alert.Location.Lng, snapshot,
		alert.ContactsNotified, alert.AuthoritiesContacted, alert.Resolved,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*EmergencyAlert, error) {
	row := s.db.QueryRow(ctx, selectAlert+` WHERE id = $1`, string(id))
	return scanAlert(row)
}

func (s *PGStore) SetContactsNotified(ctx context.Context, id types.ID, contacts []string) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE emergency_alerts SET contacts_notified = $1 WHERE id = $2`,
		contacts, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetAuthoritiesContacted(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE emergency_alerts SET authorities_contacted = TRUE WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Resolve(ctx context.Context, id types.ID, at time.Time, resolution string) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE emergency_alerts
        SET resolved = TRUE, resolved_at = $1, resolution = $2
        WHERE id = $3 AND NOT resolved`, at, resolution, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListOpen(ctx context.Context) ([]*EmergencyAlert, error) {
	rows, err := s.db.Query(ctx, selectAlert+` WHERE NOT resolved ORDER BY ts`)
	if err != nil {
		return nil, err
	}
	return collectAlerts(rows)
}

func (s *PGStore) ListByTrip(ctx context.Context, tripID types.ID) ([]*EmergencyAlert, error) {
	rows, err := s.db.Query(ctx, selectAlert+` WHERE trip_id = $1 ORDER BY ts`, string(tripID))
	if err != nil {
		return nil, err
	}
	return collectAlerts(rows)
}

const selectAlert = `
        SELECT id, trip_id, user_id, user_type, type, ts, loc_lat, loc_lng,
               context, contacts_notified, authorities_contacted, resolved,
               resolved_at, resolution
        FROM emergency_alerts`

func collectAlerts(rows pgx.Rows) ([]*EmergencyAlert, error) {
	defer rows.Close()
	var out []*EmergencyAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

func scanAlert(row pgx.Row) (*EmergencyAlert, error) {
	var alert EmergencyAlert
	var snapshot []byte
	err := row.Scan(
		&alert.ID, &alert.TripID, &alert.UserID, &alert.UserType, &alert.Type,
		&alert.Timestamp, &alert.Location.Lat, &alert.Location.Lng,
		&snapshot, &alert.ContactsNotified, &alert.AuthoritiesContacted,
		&alert.Resolved, &alert.ResolvedAt, &alert.Resolution,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &alert.Context); err != nil {
			return nil, err
		}
	}
	return &alert, nil
}

// PGContactStore reads pre-registered emergency contacts.
type PGContactStore struct {
	db *pgxpool.Pool
}

func NewPGContactStore(db *pgxpool.Pool) *PGContactStore {
	return &PGContactStore{db: db}
}

func (s *PGContactStore) ContactsFor(ctx context.Context, userID types.ID) ([]notify.Contact, error) {
	rows, err := s.db.Query(ctx, `
        SELECT name, device_token, phone_number
        FROM emergency_contacts WHERE user_id = $1 ORDER BY priority`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notify.Contact
	for rows.Next() {
		var c notify.Contact
		var token, phone *string
		if err := rows.Scan(&c.Name, &token, &phone); err != nil {
			return nil, err
		}
		if token != nil {
			c.DeviceToken = *token
		}
		if phone != nil {
			c.PhoneNumber = *phone
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
