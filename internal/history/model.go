package history

import (
	"time"

	"github.com/google/uuid"
)

// Entry matches the download_history table schema.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	JobID       uuid.UUID `json:"job_id"`
	RequesterID string    `json:"requester_id"`
	Resource    string    `json:"resource"`
	Outcome     string    `json:"outcome"`
	WorkerID    int       `json:"worker_id"`
	Title       string    `json:"title,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	SubmittedAt time.Time `json:"submitted_at"`
	FinishedAt  time.Time `json:"finished_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for history queries.
type ListParams struct {
	Outcome  string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// DefaultListParams returns sensible defaults.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}
