package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/rejoinhq/rejoin/internal/conversation"
	"github.com/rejoinhq/rejoin/internal/governance/quota"
	inats "github.com/rejoinhq/rejoin/internal/nats"
)

// Orchestrator consumes inbound member messages, resolves the owning
// account, enforces governance and quota, and runs the decision engine.
type Orchestrator struct {
	publisher   *inats.Publisher
	consumerMgr *inats.ConsumerManager
	router      *Router
	validator   *Validator
	quotas      *quota.Service
	accounts    conversation.AccountResolver
	engine      *conversation.Engine
	decisions   *DecisionPublisher
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	publisher *inats.Publisher,
	consumerMgr *inats.ConsumerManager,
	router *Router,
	validator *Validator,
	quotas *quota.Service,
	accounts conversation.AccountResolver,
	engine *conversation.Engine,
) *Orchestrator {
	return &Orchestrator{
		publisher:   publisher,
		consumerMgr: consumerMgr,
		router:      router,
		validator:   validator,
		quotas:      quotas,
		accounts:    accounts,
		engine:      engine,
		decisions:   NewDecisionPublisher(publisher),
	}
}

// Start begins the orchestrator event loop. Blocks until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	consumer, err := o.consumerMgr.EnsureConsumer(ctx, inats.StreamMessages, "orchestrator", inats.SubjectInboundMessage)
	if err != nil {
		return err
	}

	slog.Info("orchestrator started", "consumer", "orchestrator")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("fetching inbound messages", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			o.processMessage(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (o *Orchestrator) processMessage(ctx context.Context, msg jetstream.Msg) {
	var inbound inats.InboundMessage
	if err := json.Unmarshal(msg.Data(), &inbound); err != nil {
		slog.Error("unmarshaling inbound message", "error", err)
		_ = msg.Nak()
		return
	}

	slog.Debug("orchestrator processing message",
		"id", inbound.ID,
		"from", inbound.MemberAddr,
		"to", inbound.ChannelAddr,
	)

	route, err := o.router.Route(ctx, inbound.ChannelAddr)
	if err != nil {
		slog.Warn("routing failed", "error", err, "channel_addr", inbound.ChannelAddr)
		_ = msg.Ack()
		return
	}

	if err := o.validator.Validate(route, inbound.MemberAddr); err != nil {
		slog.Warn("validation failed", "error", err, "account_id", route.AccountID)
		o.publishAudit(ctx, route, inbound, "message_rejected", "warn", err.Error())
		_ = msg.Ack()
		return
	}

	if err := o.quotas.CheckLLMQuota(ctx, route.AccountID); err != nil {
		slog.Warn("quota exceeded, dropping message", "error", err, "account_id", route.AccountID)
		o.publishAudit(ctx, route, inbound, "quota_exceeded", "warn", err.Error())
		_ = msg.Ack()
		return
	}

	threadID := conversation.ThreadIDFor(route.AccountID, inbound.MemberAddr)
	tc, err := o.accounts.ResolveThreadContext(ctx, route.AccountID, threadID, inbound.MemberAddr, inbound.MemberName)
	if err != nil {
		slog.Error("resolving thread context", "error", err, "account_id", route.AccountID)
		_ = msg.Nak()
		return
	}

	result, err := o.engine.EvaluateInbound(ctx, tc, inbound.Body)
	if err != nil {
		// The inbound row is already recorded; retrying the message would
		// duplicate it, so failures surface in the audit trail instead.
		slog.Error("evaluating inbound message", "error", err, "thread_id", threadID)
		o.publishAudit(ctx, route, inbound, "evaluation_failed", "error", err.Error())
		_ = msg.Ack()
		return
	}

	o.decisions.NotifyDecision(ctx, tc, result)

	o.publishAudit(ctx, route, inbound, "message_evaluated", "info",
		"Inbound message evaluated from "+inbound.MemberAddr)

	_ = msg.Ack()
}

func (o *Orchestrator) publishAudit(ctx context.Context, route *RouteResult, inbound inats.InboundMessage, eventType, severity, details string) {
	audit := inats.AuditEvent{
		AccountID:    route.AccountID,
		EventType:    eventType,
		Severity:     severity,
		ResourceType: "thread",
		ResourceID:   conversation.ThreadIDFor(route.AccountID, inbound.MemberAddr).String(),
		Details:      details,
		Timestamp:    time.Now().UTC(),
	}
	if err := o.publisher.PublishAuditEvent(ctx, audit); err != nil {
		slog.Error("publishing audit event", "error", err)
	}
}
