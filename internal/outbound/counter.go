package outbound

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const counterKeyPrefix = "outreach:sends:"

// DailyCounter is the shared send budget for one UTC calendar day. INCR
// gives the atomic check-and-increment the admission path needs; every
// process sharing the Redis instance sees the same budget.
type DailyCounter struct {
	rdb   *redis.Client
	limit int
}

func NewDailyCounter(rdb *redis.Client, limit int) *DailyCounter {
	return &DailyCounter{rdb: rdb, limit: limit}
}

func counterKey(now time.Time) string {
	return counterKeyPrefix + now.UTC().Format("2006-01-02")
}

// Reserve claims one send from today's budget. Over-limit claims are
// returned immediately so concurrent dispatchers can never overshoot.
func (c *DailyCounter) Reserve(ctx context.Context, now time.Time) error {
	key := counterKey(now)

	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("reserve send budget: %w", err)
	}
	if count == 1 {
		// Counter keys expire after two days; the date in the key does
		// the real scoping, the TTL only prevents buildup.
		c.rdb.Expire(ctx, key, 48*time.Hour)
	}

	if count > int64(c.limit) {
		if err := c.rdb.Decr(ctx, key).Err(); err != nil {
			return fmt.Errorf("return send budget: %w", err)
		}
		return ErrRateLimited
	}
	return nil
}

// Release returns a reserved send, used when the gateway fails so a failed
// dispatch does not consume budget.
func (c *DailyCounter) Release(ctx context.Context, now time.Time) error {
	return c.rdb.Decr(ctx, counterKey(now)).Err()
}

// Used reports how much of today's budget is consumed.
func (c *DailyCounter) Used(ctx context.Context, now time.Time) (int, error) {
	count, err := c.rdb.Get(ctx, counterKey(now)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}
