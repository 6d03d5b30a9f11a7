package quota

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS user_limits (
	user_id            TEXT PRIMARY KEY,
	downloads_today    INTEGER NOT NULL DEFAULT 0,
	last_download_date TEXT NOT NULL
);`

// Each statement performs rollover and the read or increment in one upsert.
const (
	sqliteGet = `
INSERT INTO user_limits (user_id, downloads_today, last_download_date)
VALUES (?, 0, ?)
ON CONFLICT (user_id) DO UPDATE SET
	downloads_today = CASE
		WHEN user_limits.last_download_date < excluded.last_download_date THEN 0
		ELSE user_limits.downloads_today END,
	last_download_date = MAX(user_limits.last_download_date, excluded.last_download_date)
RETURNING downloads_today`

	sqliteIncrement = `
INSERT INTO user_limits (user_id, downloads_today, last_download_date)
VALUES (?, 1, ?)
ON CONFLICT (user_id) DO UPDATE SET
	downloads_today = CASE
		WHEN user_limits.last_download_date < excluded.last_download_date THEN 1
		ELSE user_limits.downloads_today + 1 END,
	last_download_date = MAX(user_limits.last_download_date, excluded.last_download_date)
RETURNING downloads_today`
)

// SQLiteStore keeps counters in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{`PRAGMA journal_mode=WAL;`, `PRAGMA busy_timeout=5000;`} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring sqlite: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating user_limits table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID, day string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, sqliteGet, userID, day).Scan(&count); err != nil {
		return 0, fmt.Errorf("reading user limit: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) Increment(ctx context.Context, userID, day string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, sqliteIncrement, userID, day).Scan(&count); err != nil {
		return 0, fmt.Errorf("incrementing user limit: %w", err)
	}
	return count, nil
}

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
