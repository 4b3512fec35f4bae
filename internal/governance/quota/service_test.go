package quota

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*RateLimiter, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	return NewRateLimiter(rdb), rdb
}

func fill(t *testing.T, l *RateLimiter, accountID uuid.UUID, n, limit int) {
	t.Helper()
	for i := 0; i < n; i++ {
		allowed, err := l.CheckAndIncrement(context.Background(), accountID, limit)
		require.NoError(t, err)
		require.True(t, allowed, "evaluation %d should be under the limit", i+1)
	}
}

func TestRateLimiterCountsUsage(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	accountID := uuid.New()

	usage, err := l.GetMinuteUsage(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 0, usage, "fresh account starts at zero")

	fill(t, l, accountID, 1, 10)

	usage, err = l.GetMinuteUsage(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 1, usage)
}

func TestRateLimiterDeniesAtCap(t *testing.T) {
	l, _ := newTestLimiter(t)
	accountID := uuid.New()

	fill(t, l, accountID, 5, 5)

	allowed, err := l.CheckAndIncrement(context.Background(), accountID, 5)
	require.NoError(t, err)
	assert.False(t, allowed, "sixth evaluation must be denied")
}

func TestRateLimiterIsolatesAccounts(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	saturated := uuid.New()
	fresh := uuid.New()

	fill(t, l, saturated, 3, 3)

	allowed, err := l.CheckAndIncrement(ctx, saturated, 3)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = l.CheckAndIncrement(ctx, fresh, 3)
	require.NoError(t, err)
	assert.True(t, allowed, "one saturated gym must not affect another")
}

func TestRateLimiterExpiresOldEntries(t *testing.T) {
	l, rdb := newTestLimiter(t)
	ctx := context.Background()
	accountID := uuid.New()

	// Seed the sorted set with entries that fell out of the window.
	key := minuteKey(accountID)
	stale := float64(time.Now().Add(-70 * time.Second).UnixMilli())
	for i := 0; i < 3; i++ {
		rdb.ZAdd(ctx, key, redis.Z{Score: stale + float64(i), Member: fmt.Sprintf("old:%d", i)})
	}
	count, err := rdb.ZCard(ctx, key).Result()
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	allowed, err := l.CheckAndIncrement(ctx, accountID, 3)
	require.NoError(t, err)
	assert.True(t, allowed, "stale entries must not count against the cap")

	usage, err := l.GetMinuteUsage(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 1, usage)
}
