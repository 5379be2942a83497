package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dedupKeyPrefix = "webhook:event:"

// EventDeduplicator remembers fully processed webhook event ids in Redis so
// exact replays are short-circuited before any database work. Ids are recorded
// only after the mutation committed: a delivery that fails mid-flight leaves
// no trace, and the provider's redelivery is processed from scratch. The
// status compare-and-set remains the correctness guarantee; this only saves
// the round trip, so a Redis outage degrades to processing every delivery.
type EventDeduplicator struct {
	redis  *Redis
	ttl    time.Duration
	logger *zap.Logger
}

// NewEventDeduplicator builds a deduplicator remembering ids for ttl.
func NewEventDeduplicator(redis *Redis, ttl time.Duration, logger *zap.Logger) *EventDeduplicator {
	return &EventDeduplicator{redis: redis, ttl: ttl, logger: logger}
}

// Seen reports whether the event id was recorded by a completed delivery.
// Read-only; errors are logged and treated as "not seen".
func (d *EventDeduplicator) Seen(ctx context.Context, eventID string) bool {
	if d == nil || d.redis == nil || d.redis.Client == nil || eventID == "" {
		return false
	}
	err := d.redis.Client.Get(ctx, dedupKeyPrefix+eventID).Err()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			d.logger.Warn("webhook dedup unavailable", zap.Error(err))
		}
		return false
	}
	return true
}

// Mark records the event id once its processing has committed.
func (d *EventDeduplicator) Mark(ctx context.Context, eventID string) {
	if d == nil || d.redis == nil || d.redis.Client == nil || eventID == "" {
		return
	}
	if err := d.redis.Client.Set(ctx, dedupKeyPrefix+eventID, 1, d.ttl).Err(); err != nil {
		d.logger.Warn("recording webhook event id failed", zap.Error(err))
	}
}
