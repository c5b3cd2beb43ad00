package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard short-circuits webhook redeliveries before they reach the
// database. It is a fast path only: the durable dedup is the unique
// constraint on processed_events. Events are marked here after successful
// processing, so a Redis miss or outage degrades to an extra DB round-trip,
// never to a skipped event.
type ReplayGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewReplayGuard(rdb *redis.Client, ttl time.Duration) *ReplayGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ReplayGuard{rdb: rdb, ttl: ttl}
}

// Seen reports whether the event id was already fully processed. Errors
// count as unseen; the database decides.
func (g *ReplayGuard) Seen(ctx context.Context, eventID string) bool {
	if g == nil || g.rdb == nil {
		return false
	}
	n, err := g.rdb.Exists(ctx, "webhook:event:"+eventID).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// MarkProcessed records the event id after the confirmation transaction
// committed. Failures are ignored.
func (g *ReplayGuard) MarkProcessed(ctx context.Context, eventID string) {
	if g == nil || g.rdb == nil {
		return
	}
	g.rdb.Set(ctx, "webhook:event:"+eventID, 1, g.ttl)
}
