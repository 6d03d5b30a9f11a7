// Package ratelimit throttles how often a single user may submit requests.
//
// Each user has a window of recent attempt times. Attempts older than the
// period are forgotten. While the window holds fewer than burst attempts the
// user is let through; once it is full, an attempt passes only if at least
// 1/rate seconds have gone by since the most recent recorded one. Rejected
// attempts are not recorded, and the window never keeps more than burst
// entries.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a user's attempt may proceed.
type Limiter interface {
	Allow(ctx context.Context, userID string) bool
}

// Params configures a limiter.
type Params struct {
	Rate   float64 // sustained attempts per second once the burst is spent; <= 0 means never
	Burst  int
	Period time.Duration
}

// spacing returns the minimum gap between attempts once the burst is spent,
// or false when no gap is ever enough.
func (p Params) spacing() (time.Duration, bool) {
	if p.Rate <= 0 {
		return 0, false
	}
	return time.Duration(float64(time.Second) / p.Rate), true
}
