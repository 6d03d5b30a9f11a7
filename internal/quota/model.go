package quota

import (
	"context"
	"errors"
	"fmt"
)

// ErrStorage marks failures of the underlying quota store. Callers must treat
// the user's count as unknown.
var ErrStorage = errors.New("quota storage unavailable")

// DayLayout is the calendar-day format handed to stores.
const DayLayout = "2006-01-02"

// Store persists one daily download counter per user.
//
// Both methods first roll the record over when day is later than the stored
// reset date (count back to zero, date advanced), then apply the operation.
// Implementations must do this atomically per user. day uses DayLayout.
type Store interface {
	Get(ctx context.Context, userID, day string) (int, error)
	Increment(ctx context.Context, userID, day string) (int, error)
}

// Status is the API view of a user's quota for the current day.
type Status struct {
	UsedToday int    `json:"used_today"`
	LimitDay  int    `json:"limit_day"`
	Remaining int    `json:"remaining"`
	Day       string `json:"day"`
}

// LimitExceededError is returned by Gate.Admit when a user may not download.
// Current is -1 when the count could not be read.
type LimitExceededError struct {
	Current int
	Limit   int
	Err     error
}

func (e *LimitExceededError) Error() string {
	if e.Current < 0 {
		return fmt.Sprintf("daily limit check failed: %v", e.Err)
	}
	return fmt.Sprintf("daily download limit reached: %d/%d", e.Current, e.Limit)
}

func (e *LimitExceededError) Unwrap() error {
	return e.Err
}
