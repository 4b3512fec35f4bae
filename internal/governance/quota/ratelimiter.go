package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	minuteKeyPrefix = "quota:minute:"
	slidingWindow   = time.Minute

	// Keys outlive the window slightly so a stalled account's set
	// still expires on its own.
	minuteKeyTTL = 90 * time.Second
)

// RateLimiter caps per-minute model evaluations for an account using a
// Redis sorted set as a sliding window. Scores are unix milliseconds.
type RateLimiter struct {
	rdb redis.Cmdable
}

func NewRateLimiter(rdb redis.Cmdable) *RateLimiter {
	return &RateLimiter{rdb: rdb}
}

func minuteKey(accountID uuid.UUID) string {
	return minuteKeyPrefix + accountID.String()
}

func windowFloor(now time.Time) string {
	return strconv.FormatInt(now.Add(-slidingWindow).UnixMilli(), 10)
}

// CheckAndIncrement reports whether the account is under maxPerMinute.
// When it is, the call also counts as one use of the window.
func (l *RateLimiter) CheckAndIncrement(ctx context.Context, accountID uuid.UUID, maxPerMinute int) (bool, error) {
	key := minuteKey(accountID)
	now := time.Now()

	pipe := l.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", windowFloor(now))
	inWindow := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("trimming rate window for %s: %w", accountID, err)
	}

	used := inWindow.Val()
	if used >= int64(maxPerMinute) {
		return false, nil
	}

	// Member carries the running count so two adds in the same
	// nanosecond stay distinct entries.
	entry := fmt.Sprintf("%d:%d", now.UnixNano(), used)
	pipe = l.rdb.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: entry})
	pipe.Expire(ctx, key, minuteKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("recording rate window entry for %s: %w", accountID, err)
	}
	return true, nil
}

// GetMinuteUsage returns how many evaluations the account has made in
// the current window.
func (l *RateLimiter) GetMinuteUsage(ctx context.Context, accountID uuid.UUID) (int, error) {
	now := time.Now()
	ceiling := strconv.FormatInt(now.UnixMilli(), 10)

	count, err := l.rdb.ZCount(ctx, minuteKey(accountID), windowFloor(now), ceiling).Result()
	if err != nil {
		return 0, fmt.Errorf("reading rate window for %s: %w", accountID, err)
	}
	return int(count), nil
}
