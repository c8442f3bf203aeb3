package resilience

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"paygate/internal/clock"
	"paygate/internal/provider"
)

// slidingWindowScript prunes, counts and optionally records in one step.
// KEYS[1] window key; ARGV: now_ms, window_ms, max, member, record(0|1).
// Returns {admitted(0|1), retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < max then
  if ARGV[5] == '1' then
    redis.call('ZADD', key, now, ARGV[4])
    redis.call('PEXPIRE', key, window)
  end
  return {1, 0}
end

local retry = 0
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  retry = tonumber(oldest[2]) + window - now
end
if retry < 0 then
  retry = 0
end
return {0, retry}
`)

// RedisLimiter shares windows across processes through sorted sets.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	prefix string
	max    int
	window time.Duration
	clock  clock.Clock
}

func NewRedisLimiter(rdb redis.UniversalClient, prefix string, maxRequests int, window time.Duration, c clock.Clock) *RedisLimiter {
	if c == nil {
		c = clock.System{}
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix, max: maxRequests, window: window, clock: c}
}

func (l *RedisLimiter) key(k string) string { return l.prefix + k }

func (l *RedisLimiter) eval(ctx context.Context, key string, record bool) (bool, time.Duration, error) {
	now := l.clock.Now().UnixMilli()
	rec := "0"
	if record {
		rec = "1"
	}
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	res, err := slidingWindowScript.Run(ctx, l.rdb, []string{l.key(key)},
		now, l.window.Milliseconds(), l.max, member, rec).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ok, _, err := l.eval(ctx, key, false)
	return ok, err
}

func (l *RedisLimiter) Hit(ctx context.Context, key string) error {
	ok, retry, err := l.eval(ctx, key, true)
	if err != nil {
		return err
	}
	if !ok {
		return provider.RateLimitError(key, retry)
	}
	return nil
}

func (l *RedisLimiter) Clear(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, l.key(key)).Err()
}

func (l *RedisLimiter) ClearAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := l.rdb.Scan(ctx, cursor, l.prefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := l.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
