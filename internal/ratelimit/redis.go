package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:user:"

// KEYS[1] window zset; ARGV: now ms, period ms, burst, spacing ms (-1 = never), member.
// Returns 1 when the attempt is recorded, 0 when rejected.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local period = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local spacing = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - period)
local count = redis.call('ZCARD', key)
if count >= burst then
	if spacing < 0 then
		return 0
	end
	local last = redis.call('ZRANGE', key, -1, -1, 'WITHSCORES')
	if last[2] and now - tonumber(last[2]) < spacing then
		return 0
	end
end

redis.call('ZADD', key, now, ARGV[5])
redis.call('ZREMRANGEBYRANK', key, 0, -(burst + 1))
redis.call('PEXPIRE', key, period)
return 1
`)

// RedisLimiter keeps per-user windows in Redis sorted sets so several
// processes can share them. Redis failures let the attempt through.
type RedisLimiter struct {
	rdb    redis.Cmdable
	params Params
	now    func() time.Time
	seq    atomic.Uint64
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(rdb redis.Cmdable, params Params) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, params: params, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, userID string) bool {
	allowed, err := l.allow(ctx, userID)
	if err != nil {
		slog.Warn("rate limiter: redis error, failing open", "error", err, "user_id", userID)
		return true
	}
	return allowed
}

func (l *RedisLimiter) allow(ctx context.Context, userID string) (bool, error) {
	now := l.now()
	spacing := int64(-1)
	if gap, ok := l.params.spacing(); ok {
		spacing = gap.Milliseconds()
	}
	member := fmt.Sprintf("%d:%d", now.UnixNano(), l.seq.Add(1))

	res, err := allowScript.Run(ctx, l.rdb, []string{keyPrefix + userID},
		now.UnixMilli(), l.params.Period.Milliseconds(), l.params.Burst, spacing, member).Int()
	if err != nil {
		return false, fmt.Errorf("rate limiter script: %w", err)
	}
	return res == 1, nil
}
