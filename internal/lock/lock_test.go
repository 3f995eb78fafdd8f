package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLockerGrantsEveryLease(t *testing.T) {
	var l *Locker
	assert.Nil(t, NewLocker(nil))
	assert.False(t, l.Enabled())

	ctx := context.Background()
	first, ok, err := l.Acquire(ctx, "stuck_sending", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	second, ok, err := l.Acquire(ctx, "stuck_sending", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, "stuck_sending", first.Key())
	assert.NoError(t, first.Release(ctx))
	assert.NoError(t, second.Release(ctx))
}

func TestAcquireValidatesInput(t *testing.T) {
	var l *Locker
	_, _, err := l.Acquire(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, _, err = l.Acquire(context.Background(), "auto_dispatch", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestNilLeaseRelease(t *testing.T) {
	var le *Lease
	assert.NoError(t, le.Release(context.Background()))
	assert.Equal(t, "", le.Key())
}
