package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunequeue/tunequeue/internal/config"
	"github.com/tunequeue/tunequeue/internal/quota"
	"github.com/tunequeue/tunequeue/internal/ratelimit"
)

func TestOpenQuotaStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	tests := []struct {
		backend   string
		wantType  any
		wantCheck bool
	}{
		{config.BackendMemory, &quota.MemoryStore{}, false},
		{config.BackendRedis, &quota.RedisStore{}, false},
		{config.BackendSQLite, &quota.SQLiteStore{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := &config.Config{Quota: config.QuotaConfig{
				Backend:    tt.backend,
				SQLitePath: filepath.Join(t.TempDir(), "quota.db"),
			}}
			store, check, closer, err := openQuotaStore(context.Background(), cfg, nil, rdb)
			require.NoError(t, err)
			defer closer()

			assert.IsType(t, tt.wantType, store)
			assert.Equal(t, tt.wantCheck, check != nil)
			if check != nil {
				assert.NoError(t, check.Check(context.Background()))
			}
		})
	}
}

func TestNewLimiter(t *testing.T) {
	params := ratelimit.Params{Rate: 1, Burst: 1, Period: time.Second}

	mem := newLimiter(config.BackendMemory, params, nil)
	assert.IsType(t, &ratelimit.MemoryLimiter{}, mem)
	mem.(*ratelimit.MemoryLimiter).Close()

	assert.IsType(t, &ratelimit.RedisLimiter{}, newLimiter(config.BackendRedis, params, goredis.NewClient(&goredis.Options{})))
}
