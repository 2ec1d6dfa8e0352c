// README: Live safety event feed over Redis pub/sub. Driver and rider apps
// subscribe to their trip's channel for real-time classification changes.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"tripguard/internal/types"
)

// FeedEvent is one live safety signal for an in-progress trip.
type FeedEvent struct {
	TripID types.ID  `json:"trip_id"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`

	SpeedAlert  string   `json:"speed_alert,omitempty"`
	DeviationID types.ID `json:"deviation_id,omitempty"`
	DistanceM   float64  `json:"distance_m,omitempty"`
	RecordID    types.ID `json:"record_id,omitempty"`
}

// Feed event kinds.
const (
	KindSpeedAlert       = "speed_alert"
	KindDeviationOpened  = "deviation_opened"
	KindDeviationPrompt  = "deviation_prompt"
	KindDeviationCleared = "deviation_cleared"
	KindCompletionPrompt = "completion_prompt"
)

type Feed interface {
	PublishSafetyEvent(ctx context.Context, ev FeedEvent) error
}

// RedisFeed publishes to one pub/sub channel per trip.
type RedisFeed struct {
	client *redis.Client
}

func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

// Channel is the pub/sub channel carrying a trip's safety events.
func Channel(tripID types.ID) string {
	return "tripguard:trip:" + string(tripID)
}

func (f *RedisFeed) PublishSafetyEvent(ctx context.Context, ev FeedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, Channel(ev.TripID), payload).Err()
}
