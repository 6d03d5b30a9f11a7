package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_AdmitUnderLimit(t *testing.T) {
	svc, _ := newTestService(NewMemoryStore(), time.UTC, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	gate := NewGate(svc, 2)
	ctx := context.Background()

	require.NoError(t, gate.Admit(ctx, "u"))
	svc.Increment(ctx, "u")
	require.NoError(t, gate.Admit(ctx, "u"))
	svc.Increment(ctx, "u")

	err := gate.Admit(ctx, "u")
	require.Error(t, err)

	var limitErr *LimitExceededError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 2, limitErr.Current)
	assert.Equal(t, 2, limitErr.Limit)
	assert.False(t, errors.Is(err, ErrStorage))
	assert.Contains(t, err.Error(), "2/2")
}

func TestGate_ZeroLimitDeniesEveryone(t *testing.T) {
	gate := NewGate(NewService(NewMemoryStore(), time.UTC), 0)

	var limitErr *LimitExceededError
	require.ErrorAs(t, gate.Admit(context.Background(), "anyone"), &limitErr)
	assert.Equal(t, 0, limitErr.Current)
}

func TestGate_StorageFailureDenies(t *testing.T) {
	gate := NewGate(NewService(failingStore{}, time.UTC), 5)

	err := gate.Admit(context.Background(), "u")
	require.Error(t, err)

	var limitErr *LimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, -1, limitErr.Current)
	assert.Equal(t, 5, limitErr.Limit)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestGate_ReadDoesNotCharge(t *testing.T) {
	svc := NewService(NewMemoryStore(), time.UTC)
	gate := NewGate(svc, 1)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, gate.Admit(ctx, "u"))
	}
	count, err := svc.GetCount(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
