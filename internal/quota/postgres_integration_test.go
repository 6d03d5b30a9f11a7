//go:build integration

package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunequeue/tunequeue/internal/database/dbtest"
)

func TestPostgresStore_RolloverAndConcurrency(t *testing.T) {
	store := NewPostgresStore(dbtest.NewPool(t))
	ctx := context.Background()

	count, err := store.Get(ctx, "u", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Increment(ctx, "u", "2026-03-01")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err = store.Get(ctx, "u", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 20, count)

	count, err = store.Get(ctx, "u", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = store.Increment(ctx, "u", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "an older day must not rewind the record")

	svc := NewService(store, time.UTC)
	assert.True(t, svc.CanDownload(ctx, "fresh-user", 1))
}
