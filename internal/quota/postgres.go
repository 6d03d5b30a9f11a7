package quota

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps counters in the user_limits table created by migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (r *PostgresStore) Get(ctx context.Context, userID, day string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`INSERT INTO user_limits (user_id, downloads_today, last_download_date)
		 VALUES ($1, 0, $2::date)
		 ON CONFLICT (user_id) DO UPDATE SET
		     downloads_today = CASE
		         WHEN user_limits.last_download_date < EXCLUDED.last_download_date THEN 0
		         ELSE user_limits.downloads_today END,
		     last_download_date = GREATEST(user_limits.last_download_date, EXCLUDED.last_download_date),
		     updated_at = NOW()
		 RETURNING downloads_today`, userID, day,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("reading user limit: %w", err)
	}
	return count, nil
}

func (r *PostgresStore) Increment(ctx context.Context, userID, day string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`INSERT INTO user_limits (user_id, downloads_today, last_download_date)
		 VALUES ($1, 1, $2::date)
		 ON CONFLICT (user_id) DO UPDATE SET
		     downloads_today = CASE
		         WHEN user_limits.last_download_date < EXCLUDED.last_download_date THEN 1
		         ELSE user_limits.downloads_today + 1 END,
		     last_download_date = GREATEST(user_limits.last_download_date, EXCLUDED.last_download_date),
		     updated_at = NOW()
		 RETURNING downloads_today`, userID, day,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incrementing user limit: %w", err)
	}
	return count, nil
}
