package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dailyKeyPrefix = "quota:daily:"
	dailyKeyTTL    = 72 * time.Hour
)

// KEYS[1] user hash; ARGV[1] day, ARGV[2] increment, ARGV[3] ttl seconds.
var dailyScript = redis.NewScript(`
local key = KEYS[1]
local day = ARGV[1]
local stored = redis.call('HGET', key, 'day')
if (not stored) or stored < day then
	redis.call('HSET', key, 'day', day, 'count', 0)
end
local count = tonumber(redis.call('HGET', key, 'count') or '0')
local incr = tonumber(ARGV[2])
if incr > 0 then
	count = redis.call('HINCRBY', key, 'count', incr)
end
redis.call('EXPIRE', key, tonumber(ARGV[3]))
return count
`)

// RedisStore keeps one hash per user holding the count and its day.
type RedisStore struct {
	rdb redis.Cmdable
}

// NewRedisStore creates a new Redis-backed quota store.
func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (r *RedisStore) Get(ctx context.Context, userID, day string) (int, error) {
	count, err := r.run(ctx, userID, day, 0)
	if err != nil {
		return 0, fmt.Errorf("reading daily count: %w", err)
	}
	return count, nil
}

func (r *RedisStore) Increment(ctx context.Context, userID, day string) (int, error) {
	count, err := r.run(ctx, userID, day, 1)
	if err != nil {
		return 0, fmt.Errorf("incrementing daily count: %w", err)
	}
	return count, nil
}

func (r *RedisStore) run(ctx context.Context, userID, day string, incr int) (int, error) {
	return dailyScript.Run(ctx, r.rdb, []string{dailyKeyPrefix + userID},
		day, incr, int(dailyKeyTTL.Seconds())).Int()
}
