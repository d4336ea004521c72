package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper short-circuits duplicate deliveries of the same job within a TTL
// window. It is an optimization only; the database unique constraints remain
// the correctness backstop.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire a dedup slot for handler + id.
// Returns true if this is the first time, false for a duplicate.
// If Redis is unavailable, processing is allowed through.
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, id int) bool {
	key := fmt.Sprintf("dedup:%s:%d", handler, id)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("handler", handler),
				zap.Int("id", id),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated job delivery",
			zap.String("handler", handler),
			zap.Int("id", id),
			zap.String("dedup_key", key),
		)
	}

	return ok
}

// Release frees a dedup slot once a run finishes, whatever its outcome,
// so a later, separately requested job is not swallowed. The TTL passed
// to New only bounds slots orphaned by a crashed worker.
func (d *Deduper) Release(ctx context.Context, handler string, id int) {
	key := fmt.Sprintf("dedup:%s:%d", handler, id)
	if err := d.rdb.Del(ctx, key).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Failed to release dedup slot",
			zap.String("dedup_key", key),
			zap.Error(err),
		)
	}
}
