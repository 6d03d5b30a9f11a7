package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultCapacity bounds the number of users tracked by a MemoryLimiter.
const DefaultCapacity = 10_000

// MemoryLimiter keeps per-user windows in an expiring in-process cache.
// Windows untouched for a whole period are evicted.
type MemoryLimiter struct {
	params Params
	now    func() time.Time

	mu    sync.Mutex
	cache *ttlcache.Cache[string, []time.Time]
}

// NewMemoryLimiter creates a limiter and starts its expiry loop. Call Close to
// stop it.
func NewMemoryLimiter(params Params) *MemoryLimiter {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []time.Time](params.Period),
		ttlcache.WithCapacity[string, []time.Time](DefaultCapacity),
		ttlcache.WithDisableTouchOnHit[string, []time.Time](),
	)
	go cache.Start()

	return &MemoryLimiter{
		params: params,
		now:    time.Now,
		cache:  cache,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var stamps []time.Time
	if item := l.cache.Get(userID); item != nil {
		stamps = item.Value()
	}

	cutoff := now.Add(-l.params.Period)
	kept := stamps[:0:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.params.Burst {
		gap, ok := l.params.spacing()
		if !ok || now.Sub(kept[len(kept)-1]) < gap {
			return false
		}
	}

	kept = append(kept, now)
	if len(kept) > l.params.Burst {
		kept = kept[len(kept)-l.params.Burst:]
	}
	l.cache.Set(userID, kept, ttlcache.DefaultTTL)
	return true
}

// Len returns the number of users currently tracked.
func (l *MemoryLimiter) Len() int {
	return l.cache.Len()
}

// Close stops the cache expiry loop.
func (l *MemoryLimiter) Close() {
	l.cache.Stop()
}
