package seatlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewManager(client, 900*time.Second), mr
}

func TestLockSeats_Success(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	result, err := m.LockSeats(ctx, 100, []string{"12A", "12B"}, "B1", "user-1")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"12A", "12B"}, result.LockedSeats)
	assert.Empty(t, result.FailedSeats)
	assert.Equal(t, "seatlock:100:booking:B1", result.LockKey)

	assert.InDelta(t, 900, mr.TTL("seatlock:100:seat:12A").Seconds(), 1)
	assert.InDelta(t, 900, mr.TTL("seatlock:100:booking:B1").Seconds(), 1)
}

func TestLockSeats_ConflictIsAllOrNothing(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	_, err := m.LockSeats(ctx, 100, []string{"12A", "12B"}, "B1", "user-1")
	require.NoError(t, err)

	result, err := m.LockSeats(ctx, 100, []string{"12A", "12C"}, "B2", "user-2")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, []string{"12A"}, result.FailedSeats)
	// 12C was free but must not be locked either.
	assert.False(t, mr.Exists("seatlock:100:seat:12C"))
	assert.False(t, mr.Exists("seatlock:100:booking:B2"))
}

func TestLockSeats_IdempotentRetry(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	first, err := m.LockSeats(ctx, 100, []string{"12A", "12B"}, "B1", "user-1")
	require.NoError(t, err)
	mr.FastForward(10 * time.Second)

	second, err := m.LockSeats(ctx, 100, []string{"12A", "12B"}, "B1", "user-1")
	require.NoError(t, err)

	assert.True(t, second.Success)
	assert.Equal(t, first.LockedSeats, second.LockedSeats)
	// The retry must not refresh the TTL: no new writes happened.
	assert.InDelta(t, 890, mr.TTL("seatlock:100:seat:12A").Seconds(), 1)
}

func TestLockSeats_FreeAfterExpiry(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	_, err := m.LockSeats(ctx, 100, []string{"12A"}, "B1", "user-1")
	require.NoError(t, err)

	mr.FastForward(901 * time.Second)

	result, err := m.LockSeats(ctx, 100, []string{"12A"}, "B2", "user-2")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestReleaseSeats(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	_, err := m.LockSeats(ctx, 100, []string{"12A", "12B"}, "B1", "user-1")
	require.NoError(t, err)

	require.NoError(t, m.ReleaseSeats(ctx, 100, "B1"))

	assert.False(t, mr.Exists("seatlock:100:seat:12A"))
	assert.False(t, mr.Exists("seatlock:100:seat:12B"))
	assert.False(t, mr.Exists("seatlock:100:booking:B1"))
}

func TestReleaseSeats_NoopWhenAlreadyGone(t *testing.T) {
	m, _ := newTestManager(t)
	assert.NoError(t, m.ReleaseSeats(context.Background(), 100, "B1"))
}

func TestExtendLock(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	_, err := m.LockSeats(ctx, 100, []string{"12A"}, "B1", "user-1")
	require.NoError(t, err)

	extended, err := m.ExtendLock(ctx, 100, "B1", 300*time.Second)
	require.NoError(t, err)
	assert.True(t, extended)
	assert.InDelta(t, 1200, mr.TTL("seatlock:100:seat:12A").Seconds(), 1)
	assert.InDelta(t, 1200, mr.TTL("seatlock:100:booking:B1").Seconds(), 1)
}

func TestExtendLock_ExpiredIsNotRecoverable(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	_, err := m.LockSeats(ctx, 100, []string{"12A"}, "B1", "user-1")
	require.NoError(t, err)
	mr.FastForward(901 * time.Second)

	extended, err := m.ExtendLock(ctx, 100, "B1", 300*time.Second)
	require.NoError(t, err)
	assert.False(t, extended)
}

func TestAreSeatsLocked(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.LockSeats(ctx, 100, []string{"12A"}, "B1", "user-1")
	require.NoError(t, err)

	locked, err := m.AreSeatsLocked(ctx, 100, []string{"12A", "12B"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"12A": true, "12B": false}, locked)
}

func TestLockSeats_ExclusivityUnderDifferentBookings(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.LockSeats(ctx, 200, []string{"1A"}, "B1", "user-1")
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := m.LockSeats(ctx, 200, []string{"1A"}, "B2", "user-2")
	require.NoError(t, err)
	assert.False(t, second.Success)

	// A different flight is an independent keyspace.
	other, err := m.LockSeats(ctx, 201, []string{"1A"}, "B2", "user-2")
	require.NoError(t, err)
	assert.True(t, other.Success)
}
