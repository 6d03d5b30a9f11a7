package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service reads and charges per-user daily download counts. Days are computed
// in the configured location.
type Service struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

// NewService creates a quota Service. A nil location means UTC.
func NewService(store Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store: store,
		loc:   loc,
		now:   time.Now,
	}
}

// Today returns the current quota day.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(DayLayout)
}

// NextReset returns the instant the current quota day ends.
func (s *Service) NextReset() time.Time {
	now := s.now().In(s.loc)
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, s.loc)
}

// UntilReset returns how long until the current quota day ends.
func (s *Service) UntilReset() time.Duration {
	return s.NextReset().Sub(s.now())
}

// GetCount returns the number of downloads the user has completed today.
// Errors wrap ErrStorage.
func (s *Service) GetCount(ctx context.Context, userID string) (int, error) {
	count, err := s.store.Get(ctx, userID, s.Today())
	if err != nil {
		return 0, fmt.Errorf("%w: reading count for %s: %w", ErrStorage, userID, err)
	}
	return count, nil
}

// Increment charges one completed download to the user. A storage failure is
// logged and reported as false; the download itself still stands.
func (s *Service) Increment(ctx context.Context, userID string) bool {
	count, err := s.store.Increment(ctx, userID, s.Today())
	if err != nil {
		slog.Warn("quota: increment failed", "user_id", userID, "error", err)
		return false
	}
	slog.Debug("quota: download charged", "user_id", userID, "count", count)
	return true
}

// CanDownload reports whether the user is under limit. Unknown counts deny.
func (s *Service) CanDownload(ctx context.Context, userID string, limit int) bool {
	count, err := s.GetCount(ctx, userID)
	if err != nil {
		slog.Warn("quota: count unavailable, denying", "user_id", userID, "error", err)
		return false
	}
	return count < limit
}

// Status returns the user's usage for display.
func (s *Service) Status(ctx context.Context, userID string, limit int) (*Status, error) {
	count, err := s.GetCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		UsedToday: count,
		LimitDay:  limit,
		Remaining: remaining,
		Day:       s.Today(),
	}, nil
}
