// README: Strike records: 90-day disciplinary marks against a driver.
package strike

import (
	"time"

	"tripguard/internal/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusAppealed Status = "appealed"
	StatusRemoved  Status = "removed"
)

// Strike is immutable once issued except for status transitions driven by
// expiry, an approved appeal, or admin removal.
type Strike struct {
	ID          types.ID
	DriverID    types.ID
	TripID      types.ID
	Type        string
	Reason      string
	Severity    string
	ViolationID *types.ID
	IssuedAt    time.Time
	// ExpiresAt is exactly IssuedAt plus the configured expiry window.
	ExpiresAt time.Time
	Status    Status
	AppealID  *types.ID
}

// ActiveAt reports whether the strike counts toward thresholds at the given
// instant. Expiry is evaluated lazily here; the background sweep only
// persists the status flip.
func (st *Strike) ActiveAt(now time.Time) bool {
	return st.Status == StatusActive && now.Before(st.ExpiresAt)
}
