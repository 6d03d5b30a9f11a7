//go:build integration

package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunequeue/tunequeue/internal/database/dbtest"
)

func TestRepository_InsertAndList(t *testing.T) {
	repo := NewRepository(dbtest.NewPool(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, outcome := range []string{"delivered", "denied", "delivered"} {
		err := repo.Insert(ctx, &Entry{
			JobID:       uuid.New(),
			RequesterID: "alice",
			Resource:    "r",
			Outcome:     outcome,
			SubmittedAt: base,
			FinishedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	require.NoError(t, repo.Insert(ctx, &Entry{
		JobID: uuid.New(), RequesterID: "bob", Resource: "r", Outcome: "delivered",
		SubmittedAt: base, FinishedAt: base,
	}))

	entries, total, err := repo.ListByRequester(ctx, "alice", DefaultListParams())
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].FinishedAt.After(entries[1].FinishedAt), "newest first")

	entries, total, err = repo.ListByRequester(ctx, "alice", ListParams{Outcome: "denied", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "denied", entries[0].Outcome)

	entries, total, err = repo.ListByRequester(ctx, "alice", ListParams{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, entries, 1)
}

func TestRepository_DuplicateJobIgnored(t *testing.T) {
	repo := NewRepository(dbtest.NewPool(t))
	ctx := context.Background()
	jobID := uuid.New()
	now := time.Now().UTC()

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.Insert(ctx, &Entry{
			JobID: jobID, RequesterID: "alice", Resource: "r", Outcome: "delivered",
			SubmittedAt: now, FinishedAt: now,
		}))
	}

	_, total, err := repo.ListByRequester(ctx, "alice", DefaultListParams())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
