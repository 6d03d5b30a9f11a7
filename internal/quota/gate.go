package quota

import (
	"context"
	"log/slog"
)

// Gate decides whether a user may start another download today. It is
// consulted when a request is submitted and again by the worker right before
// the download, since other jobs for the same user may have completed in the
// meantime.
type Gate struct {
	svc   *Service
	limit int
}

// NewGate creates a Gate enforcing limit downloads per user per day.
func NewGate(svc *Service, limit int) *Gate {
	return &Gate{svc: svc, limit: limit}
}

// Limit returns the daily limit the gate enforces.
func (g *Gate) Limit() int {
	return g.limit
}

// Service returns the quota service backing the gate.
func (g *Gate) Service() *Service {
	return g.svc
}

// Admit returns nil when the user is allowed, or a *LimitExceededError.
// When the count cannot be read the user is denied and the error unwraps to
// ErrStorage.
func (g *Gate) Admit(ctx context.Context, userID string) error {
	count, err := g.svc.GetCount(ctx, userID)
	if err != nil {
		slog.Warn("quota gate: count unavailable, denying", "user_id", userID, "error", err)
		return &LimitExceededError{Current: -1, Limit: g.limit, Err: err}
	}
	if count >= g.limit {
		return &LimitExceededError{Current: count, Limit: g.limit}
	}
	return nil
}
