package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rejoinhq/rejoin/internal/conversation"
)

func setupQueue(t *testing.T) *DeferralQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewDeferralQueue(client)
}

func testDispatch(body string) conversation.Dispatch {
	return conversation.Dispatch{
		ID:         uuid.New(),
		AccountID:  uuid.New(),
		ThreadID:   uuid.New(),
		MemberAddr: "member-417",
		Body:       body,
	}
}

func TestDeferralQueue_OnlyDueEntriesRelease(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, q.Defer(ctx, testDispatch("morning reply"), now.Add(-time.Minute)))
	require.NoError(t, q.Defer(ctx, testDispatch("tomorrow reply"), now.Add(10*time.Hour)))

	due, err := q.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "morning reply", due[0].Body)

	// The future entry stays queued.
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeferralQueue_DueIsDestructive(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, q.Defer(ctx, testDispatch("once"), now.Add(-time.Second)))

	due, err := q.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)

	due, err = q.Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDeferralQueue_OrderedByDueTime(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, q.Defer(ctx, testDispatch("second"), now.Add(-time.Minute)))
	require.NoError(t, q.Defer(ctx, testDispatch("first"), now.Add(-2*time.Minute)))

	due, err := q.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "first", due[0].Body)
	assert.Equal(t, "second", due[1].Body)
}

type countingDispatcher struct {
	sent []conversation.Dispatch
	fail bool
}

func (d *countingDispatcher) Send(ctx context.Context, disp conversation.Dispatch) error {
	if d.fail {
		return errors.New("channel down")
	}
	d.sent = append(d.sent, disp)
	return nil
}

type appendOnlyStore struct {
	conversation.Store
	appended []conversation.Message
}

func (s *appendOnlyStore) Append(ctx context.Context, msg *conversation.Message) error {
	s.appended = append(s.appended, *msg)
	return nil
}

func TestReleaser_SendsAndRecords(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()
	now := time.Now()

	d := testDispatch("released reply")
	require.NoError(t, q.Defer(ctx, d, now.Add(-time.Minute)))

	dispatcher := &countingDispatcher{}
	store := &appendOnlyStore{}
	r := NewReleaser(q, dispatcher, store, time.Minute)

	require.NoError(t, r.ReleaseDue(ctx, now))
	require.Len(t, dispatcher.sent, 1)
	require.Len(t, store.appended, 1)
	assert.Equal(t, conversation.RoleOutbound, store.appended[0].Role)
	assert.Equal(t, d.ThreadID, store.appended[0].ThreadID)
}

func TestReleaser_FailedSendRequeues(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, q.Defer(ctx, testDispatch("flaky"), now.Add(-time.Minute)))

	dispatcher := &countingDispatcher{fail: true}
	store := &appendOnlyStore{}
	r := NewReleaser(q, dispatcher, store, time.Minute)

	require.NoError(t, r.ReleaseDue(ctx, now))
	assert.Empty(t, store.appended)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Not due again until the retry delay passes.
	due, err := q.Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}
