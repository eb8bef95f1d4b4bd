package redisinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/youme-api/internal/pkg/id"
)

// slidingWindow trims, counts and records in one step so concurrent
// attempts cannot all pass the count check.
// KEYS[1] set; ARGV: now ms, window start ms, window ms, limit, member,
// expiry ms. Returns {1, 0} when admitted, {0, retry-after ms} otherwise.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
if redis.call('ZCARD', key) >= tonumber(ARGV[4]) then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry = 0
	if oldest[2] then
		retry = tonumber(oldest[2]) + tonumber(ARGV[3]) - tonumber(ARGV[1])
	end
	return {0, retry}
end
redis.call('ZADD', key, ARGV[1], ARGV[5])
redis.call('PEXPIRE', key, ARGV[6])
return {1, 0}
`)

// AttemptLimiter is a sliding-window log limiter over a Redis sorted set.
type AttemptLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewAttemptLimiter(client redis.Cmdable, limit int, window time.Duration) *AttemptLimiter {
	return &AttemptLimiter{client: client, limit: limit, window: window, now: time.Now}
}

// Allow records an attempt for key and reports whether it fits in the window.
// When it does not, retryAfter is how long until the oldest attempt leaves it.
func (l *AttemptLimiter) Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error) {
	now := l.now()
	args := []interface{}{
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.window.Milliseconds(),
		l.limit,
		id.NewAt(now),
		(l.window + time.Minute).Milliseconds(),
	}
	res, err := slidingWindow.Run(ctx, l.client, []string{"ratelimit:" + key}, args...).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("rate limit check: unexpected reply %v", res)
	}
	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}
