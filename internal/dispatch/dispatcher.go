// Package dispatch moves approved replies out of the system: straight to
// the channel via NATS, through the quiet-hours deferral queue, or into
// the manual approval queue, depending on what the engine decided.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rejoinhq/rejoin/internal/conversation"
	"github.com/rejoinhq/rejoin/internal/nats"
)

// NATSDispatcher publishes outbound messages onto the messages stream,
// where the channel adapter picks them up for delivery.
type NATSDispatcher struct {
	publisher *nats.Publisher
}

func NewNATSDispatcher(publisher *nats.Publisher) *NATSDispatcher {
	return &NATSDispatcher{publisher: publisher}
}

func (d *NATSDispatcher) Send(ctx context.Context, disp conversation.Dispatch) error {
	msg := nats.OutboundMessage{
		ID:         disp.ID.String(),
		AccountID:  disp.AccountID,
		ThreadID:   disp.ThreadID,
		MemberAddr: disp.MemberAddr,
		Body:       disp.Body,
	}
	if err := d.publisher.PublishOutboundMessage(ctx, msg); err != nil {
		return fmt.Errorf("publishing outbound message: %w", err)
	}
	return nil
}

// OutboundQuota is the slice of the quota service the governed dispatcher
// needs.
type OutboundQuota interface {
	CheckOutboundQuota(ctx context.Context, accountID uuid.UUID) error
	RecordOutbound(ctx context.Context, accountID uuid.UUID) error
}

// GovernedDispatcher enforces the daily outbound cap around an inner
// dispatcher. Every send path (engine, releaser, approvals) goes through
// it, so the cap holds regardless of how a reply reached dispatch.
type GovernedDispatcher struct {
	inner  conversation.Dispatcher
	quotas OutboundQuota
}

func NewGovernedDispatcher(inner conversation.Dispatcher, quotas OutboundQuota) *GovernedDispatcher {
	return &GovernedDispatcher{inner: inner, quotas: quotas}
}

func (d *GovernedDispatcher) Send(ctx context.Context, disp conversation.Dispatch) error {
	if err := d.quotas.CheckOutboundQuota(ctx, disp.AccountID); err != nil {
		return fmt.Errorf("outbound quota for account %s: %w", disp.AccountID, err)
	}
	if err := d.inner.Send(ctx, disp); err != nil {
		return err
	}
	if err := d.quotas.RecordOutbound(ctx, disp.AccountID); err != nil {
		slog.Warn("recording outbound send", "error", err, "account_id", disp.AccountID)
	}
	return nil
}
