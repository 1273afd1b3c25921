package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opencoder/opencoder/backend/go-services/internal/draft"
	"github.com/opencoder/opencoder/backend/go-services/pkg/logger"
)

// Event is published on every draft status transition so clients do not need
// to poll blindly. Delivery is at-most-once per subscriber (Redis pub/sub);
// the GET /api/drafts/:id/events poll endpoint remains the source of truth.
type Event struct {
	DraftID      string       `json:"draftId"`
	AssignmentID string       `json:"assignmentId"`
	OwnerID      string       `json:"ownerId"`
	Status       draft.Status `json:"status"`
	Reason       string       `json:"reason,omitempty"`
	At           time.Time    `json:"at"`
}

// Notifier publishes draft transitions. Implementations must not block the
// lifecycle: publish failures are logged, never surfaced.
type Notifier interface {
	Publish(ctx context.Context, ev Event)
}

// Channel returns the per-owner pub/sub channel name.
func Channel(ownerID string) string {
	return "draft.events:" + ownerID
}

// RedisNotifier publishes events as JSON on the owner's channel.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("notify: marshal event for draft %s: %v", ev.DraftID, err)
		return
	}
	if err := n.client.Publish(ctx, Channel(ev.OwnerID), b).Err(); err != nil {
		logger.Warnf("notify: publish draft %s -> %s: %v", ev.DraftID, ev.Status, err)
	}
}

// NopNotifier is used when Redis is not configured.
type NopNotifier struct{}

func (NopNotifier) Publish(ctx context.Context, ev Event) {}
