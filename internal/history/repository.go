package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles download_history PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new history Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists one entry. A second entry for the same job is ignored, so
// redelivered events are harmless.
func (r *Repository) Insert(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO download_history
		   (id, job_id, requester_id, resource, outcome, worker_id, title, error, duration_ms, submitted_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (job_id) DO NOTHING`,
		e.ID, e.JobID, e.RequesterID, e.Resource, e.Outcome, e.WorkerID,
		e.Title, e.Error, e.DurationMS, e.SubmittedAt, e.FinishedAt)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}
	return nil
}

// ListByRequester returns paginated history for a requester, newest first.
func (r *Repository) ListByRequester(ctx context.Context, requesterID string, params ListParams) ([]Entry, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	conditions := []string{"requester_id = $1"}
	args := []any{requesterID}
	argIdx := 2

	if params.Outcome != "" {
		conditions = append(conditions, fmt.Sprintf("outcome = $%d", argIdx))
		args = append(args, params.Outcome)
		argIdx++
	}

	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("finished_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}

	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("finished_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var totalCount int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM download_history WHERE %s", where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("counting history entries: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(
		`SELECT id, job_id, requester_id, resource, outcome, worker_id, title, error,
		        duration_ms, submitted_at, finished_at, created_at
		 FROM download_history WHERE %s
		 ORDER BY finished_at DESC
		 LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying history entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.JobID, &e.RequesterID, &e.Resource, &e.Outcome, &e.WorkerID,
			&e.Title, &e.Error, &e.DurationMS, &e.SubmittedAt, &e.FinishedAt, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating history entries: %w", err)
	}

	return entries, totalCount, nil
}
