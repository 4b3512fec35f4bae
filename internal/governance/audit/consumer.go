package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/rejoinhq/rejoin/internal/nats"
)

const consumerName = "audit-persister"

// Consumer drains audit events off the event stream into audit_logs.
// Running it on the bus keeps the hot paths (dispatch, quota checks)
// from waiting on a database write.
type Consumer struct {
	repo        *Repository
	consumerMgr *inats.ConsumerManager
}

func NewConsumer(repo *Repository, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{repo: repo, consumerMgr: consumerMgr}
}

// Start blocks consuming audit events until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, consumerName, inats.SubjectAuditEvent)
	if err != nil {
		return err
	}
	slog.Info("audit consumer started", "consumer", consumerName)

	for ctx.Err() == nil {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Debug("audit consumer: fetching events", "error", err)
			continue
		}
		for msg := range msgs.Messages() {
			c.persist(ctx, msg)
		}
	}
	return nil
}

func (c *Consumer) persist(ctx context.Context, msg jetstream.Msg) {
	var event inats.AuditEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("audit consumer: unmarshaling event", "error", err)
		_ = msg.Nak()
		return
	}

	if err := c.repo.Insert(ctx, eventToLog(event)); err != nil {
		slog.Error("audit consumer: persisting audit log", "error", err, "event_type", event.EventType)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()

	slog.Debug("audit consumer: persisted event",
		"event_type", event.EventType,
		"account", event.AccountID,
		"resource_id", event.ResourceID,
	)
}

// eventToLog shapes a bus event into an audit_logs row. Resource IDs
// that are not UUIDs (member addresses, consumer names) stay in the
// details payload only.
func eventToLog(event inats.AuditEvent) *AuditLog {
	entry := &AuditLog{
		ID:           uuid.New(),
		AccountID:    event.AccountID,
		EventType:    event.EventType,
		Severity:     event.Severity,
		ResourceType: event.ResourceType,
		CreatedAt:    event.Timestamp,
	}
	if parsed, err := uuid.Parse(event.ResourceID); err == nil {
		entry.ResourceID = &parsed
	}
	if data, err := json.Marshal(map[string]string{"message": event.Details}); err == nil {
		entry.Details = data
	}
	return entry
}
