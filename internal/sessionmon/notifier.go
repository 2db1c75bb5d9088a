package sessionmon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusEvent is the payload published when an account's suspension flag
// changes.
type StatusEvent struct {
	UserID    int64     `json:"user_id"`
	Suspended bool      `json:"suspended"`
	At        time.Time `json:"at"`
}

// Notifier publishes suspension changes on a per-user Redis channel. This is
// the low-latency layer: delivery is bounded by push transport latency, not
// by the user's next request.
type Notifier struct {
	client *redis.Client
}

// NewNotifier constructs a Notifier.
func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

// Channel returns the pub/sub channel name for the given user.
func Channel(userID int64) string {
	return fmt.Sprintf("user:%d:status", userID)
}

// Publish announces the new suspension state for a user.
func (n *Notifier) Publish(ctx context.Context, userID int64, suspended bool) error {
	payload, err := json.Marshal(StatusEvent{UserID: userID, Suspended: suspended, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, Channel(userID), payload).Err()
}

// Subscribe opens a subscription scoped to a single user's status channel.
// The caller owns the returned PubSub and must close it.
func (n *Notifier) Subscribe(ctx context.Context, userID int64) *redis.PubSub {
	return n.client.Subscribe(ctx, Channel(userID))
}
