package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()
	key := Key("cdr", "2024-01")

	lease, err := l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, lease.Token())

	_, err = l.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	other, err := l.Acquire(ctx, Key("cdr", "2024-02"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	again, err := l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocalLockerExpiry(t *testing.T) {
	now := time.Date(2024, 2, 1, 3, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.nowFn = func() time.Time { return now }
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	fresh, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// releasing the expired lease must not drop the new holder
	require.NoError(t, stale.Release(ctx))
	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)
	require.NoError(t, fresh.Release(ctx))
}

func TestAcquireValidatesArgs(t *testing.T) {
	l := NewLocalLocker()
	_, err := l.Acquire(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = l.Acquire(context.Background(), "k", 0)
	assert.Error(t, err)
}
