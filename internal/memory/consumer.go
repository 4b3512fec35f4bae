package memory

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/rejoinhq/rejoin/internal/conversation"
	inats "github.com/rejoinhq/rejoin/internal/nats"
)

// Consumer listens for decision events and runs memory extraction over
// threads that just resolved. Non-terminal decisions are skipped; a
// thread's facts are distilled once, when the conversation closes.
type Consumer struct {
	svc         *Service
	store       conversation.Store
	consumerMgr *inats.ConsumerManager
}

// NewConsumer creates a new memory extraction Consumer.
func NewConsumer(svc *Service, store conversation.Store, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		svc:         svc,
		store:       store,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, "memory-processor", inats.SubjectDecisionEvent)
	if err != nil {
		return err
	}

	slog.Info("memory consumer started", "consumer", "memory-processor")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("memory consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var event inats.DecisionEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("memory consumer: unmarshaling event", "error", err)
		_ = msg.Nak()
		return
	}

	if !event.Resolved {
		_ = msg.Ack()
		return
	}

	thread, err := c.store.ListThread(ctx, event.ThreadID, false)
	if err != nil {
		slog.Error("memory consumer: loading thread", "error", err, "thread_id", event.ThreadID)
		_ = msg.Nak()
		return
	}
	if len(thread) == 0 {
		_ = msg.Ack()
		return
	}

	created, updated, err := c.svc.ProcessThread(ctx, event.AccountID, event.MemberAddr, event.MemberName, conversation.Transcript(thread))
	if err != nil {
		// Extraction failures are not retried: the model saw the full
		// transcript and declined to produce usable output.
		slog.Error("memory consumer: processing thread", "error", err, "thread_id", event.ThreadID)
		_ = msg.Ack()
		return
	}

	slog.Info("memory consumer: processed resolved thread",
		"thread_id", event.ThreadID,
		"created", created,
		"updated", updated,
	)
	_ = msg.Ack()
}
