package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rejoinhq/rejoin/internal/conversation"
	"github.com/rejoinhq/rejoin/internal/metrics"
)

const deferralKey = "dispatch:deferred"

// DeferralQueue holds quiet-hours dispatches in a Redis sorted set scored
// by their due time. Entries survive restarts; delivery order within a
// release batch follows due time.
type DeferralQueue struct {
	client *redis.Client
}

func NewDeferralQueue(client *redis.Client) *DeferralQueue {
	return &DeferralQueue{client: client}
}

func (q *DeferralQueue) Defer(ctx context.Context, d conversation.Dispatch, due time.Time) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling deferred dispatch: %w", err)
	}
	err = q.client.ZAdd(ctx, deferralKey, redis.Z{
		Score:  float64(due.Unix()),
		Member: string(payload),
	}).Err()
	if err != nil {
		return fmt.Errorf("deferring dispatch %s: %w", d.ID, err)
	}
	return nil
}

// Due pops every entry whose due time has passed. Malformed entries are
// dropped with a log line rather than wedging the queue.
func (q *DeferralQueue) Due(ctx context.Context, now time.Time) ([]conversation.Dispatch, error) {
	max := strconv.FormatInt(now.Unix(), 10)
	vals, err := q.client.ZRangeByScore(ctx, deferralKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading deferred dispatches: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}

	members := make([]any, len(vals))
	for i, v := range vals {
		members[i] = v
	}
	if err := q.client.ZRem(ctx, deferralKey, members...).Err(); err != nil {
		return nil, fmt.Errorf("removing released dispatches: %w", err)
	}

	out := make([]conversation.Dispatch, 0, len(vals))
	for _, v := range vals {
		var d conversation.Dispatch
		if err := json.Unmarshal([]byte(v), &d); err != nil {
			slog.Warn("dropping malformed deferred dispatch", "error", err)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Len returns the number of queued dispatches.
func (q *DeferralQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, deferralKey).Result()
}

// Releaser periodically drains due deferrals to the dispatcher and
// records the released outbound rows.
type Releaser struct {
	queue      *DeferralQueue
	dispatcher conversation.Dispatcher
	store      conversation.Store
	interval   time.Duration
}

func NewReleaser(queue *DeferralQueue, dispatcher conversation.Dispatcher, store conversation.Store, interval time.Duration) *Releaser {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Releaser{queue: queue, dispatcher: dispatcher, store: store, interval: interval}
}

// Run blocks until ctx is cancelled.
func (r *Releaser) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("deferral releaser started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("deferral releaser stopped")
			return
		case now := <-ticker.C:
			if err := r.ReleaseDue(ctx, now); err != nil {
				slog.Error("releasing deferred dispatches", "error", err)
			}
		}
	}
}

// ReleaseDue sends every dispatch that has come due. Each send appends
// the outbound row only after the channel accepted the message; a failed
// send goes back on the queue with a short retry delay.
func (r *Releaser) ReleaseDue(ctx context.Context, now time.Time) error {
	due, err := r.queue.Due(ctx, now)
	if err != nil {
		return err
	}

	for _, d := range due {
		if err := r.dispatcher.Send(ctx, d); err != nil {
			metrics.DispatchesTotal.WithLabelValues("failed").Inc()
			slog.Error("sending released dispatch", "error", err, "dispatch_id", d.ID)
			if reErr := r.queue.Defer(ctx, d, now.Add(5*time.Minute)); reErr != nil {
				slog.Error("requeueing failed dispatch", "error", reErr, "dispatch_id", d.ID)
			}
			continue
		}
		metrics.DispatchesTotal.WithLabelValues("sent").Inc()
		if err := r.store.Append(ctx, &conversation.Message{
			ThreadID:  d.ThreadID,
			AccountID: d.AccountID,
			Role:      conversation.RoleOutbound,
			Body:      d.Body,
		}); err != nil {
			slog.Error("recording released outbound message", "error", err, "thread_id", d.ThreadID)
		}
	}
	return nil
}
