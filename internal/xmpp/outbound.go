package xmpp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
	"gosrc.io/xmpp"

	inats "github.com/rejoinhq/rejoin/internal/nats"
)

const relayConsumer = "outbound-relay"

// OutboundRelay drains approved outbound messages off the message
// stream and delivers them to members over XMPP. Failed deliveries are
// Nak'd so JetStream redelivers them.
type OutboundRelay struct {
	handler     *Handler
	sender      xmpp.Sender
	consumerMgr *inats.ConsumerManager
}

func NewOutboundRelay(handler *Handler, sender xmpp.Sender, consumerMgr *inats.ConsumerManager) *OutboundRelay {
	return &OutboundRelay{
		handler:     handler,
		sender:      sender,
		consumerMgr: consumerMgr,
	}
}

// Start blocks relaying outbound messages until ctx is cancelled.
func (r *OutboundRelay) Start(ctx context.Context) error {
	consumer, err := r.consumerMgr.EnsureConsumer(ctx, inats.StreamMessages, relayConsumer, inats.SubjectOutboundMessage)
	if err != nil {
		return err
	}
	slog.Info("outbound relay started", "consumer", relayConsumer)

	for ctx.Err() == nil {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Debug("fetching outbound messages", "error", err)
			continue
		}
		for msg := range msgs.Messages() {
			r.relay(msg)
		}
	}
	return nil
}

func (r *OutboundRelay) relay(msg jetstream.Msg) {
	var outbound inats.OutboundMessage
	if err := json.Unmarshal(msg.Data(), &outbound); err != nil {
		slog.Error("unmarshaling outbound message", "error", err)
		_ = msg.Nak()
		return
	}

	if err := r.handler.SendOutboundMessage(r.sender, outbound); err != nil {
		slog.Error("sending outbound XMPP message", "error", err, "to", outbound.MemberAddr)
		_ = msg.Nak()
		return
	}

	slog.Debug("sent outbound XMPP message", "to", outbound.MemberAddr, "thread", outbound.ThreadID)
	_ = msg.Ack()
}
