// Package xmpp bridges the chat network to the message bus. Inbound
// member stanzas become bus messages for the orchestrator; approved
// outbound messages come back through the relay.
package xmpp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gosrc.io/xmpp"
	"gosrc.io/xmpp/stanza"

	inats "github.com/rejoinhq/rejoin/internal/nats"
)

const publishTimeout = 5 * time.Second

// channelAddrPrefix is the local-part prefix every gym channel address
// carries, as in "gym-<uuid>@members.domain".
const channelAddrPrefix = "gym-"

// Handler turns XMPP stanzas into bus traffic and back.
type Handler struct {
	publisher *inats.Publisher
}

func NewHandler(publisher *inats.Publisher) *Handler {
	return &Handler{publisher: publisher}
}

// HandleMessage publishes member chat messages to the inbound subject.
// Empty bodies (chat states, typing notifications) and stanzas not
// addressed to a gym channel are dropped.
func (h *Handler) HandleMessage(s xmpp.Sender, p stanza.Packet) {
	msg, ok := p.(stanza.Message)
	if !ok || msg.Body == "" {
		return
	}

	slog.Debug("XMPP message received",
		"from", msg.From,
		"to", msg.To,
		"type", string(msg.Type),
	)

	if _, err := ExtractAccountID(msg.To); err != nil {
		slog.Debug("ignoring message to non-gym address", "to", msg.To)
		return
	}

	inbound := inats.InboundMessage{
		ID:          uuid.New().String(),
		ChannelAddr: bareAddr(msg.To),
		MemberAddr:  bareAddr(msg.From),
		Body:        msg.Body,
		ReceivedAt:  time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := h.publisher.PublishInboundMessage(ctx, inbound); err != nil {
		slog.Error("publishing inbound message", "error", err, "from", msg.From)
		h.notifyMember(s, msg.From, msg.To, "Internal error processing your message")
	}
}

// HandlePresence auto-approves subscribe requests so members can add a
// gym's channel address without operator involvement.
func (h *Handler) HandlePresence(s xmpp.Sender, p stanza.Packet) {
	pres, ok := p.(stanza.Presence)
	if !ok {
		return
	}

	slog.Debug("XMPP presence received",
		"from", pres.From,
		"to", pres.To,
		"type", string(pres.Type),
	)

	if pres.Type != "subscribe" {
		return
	}
	reply := stanza.Presence{
		Attrs: stanza.Attrs{
			From: pres.To,
			To:   pres.From,
			Type: "subscribed",
		},
	}
	if err := s.Send(reply); err != nil {
		slog.Error("sending presence subscribed reply", "error", err)
	}
}

func (h *Handler) HandleIQ(_ xmpp.Sender, p stanza.Packet) {
	iq, ok := p.(*stanza.IQ)
	if !ok {
		return
	}
	slog.Debug("XMPP IQ received", "from", iq.From, "to", iq.To, "type", string(iq.Type))
}

// SendOutboundMessage delivers one outbound message as a chat stanza
// from the gym's channel address.
func (h *Handler) SendOutboundMessage(s xmpp.Sender, outbound inats.OutboundMessage) error {
	msg := stanza.Message{
		Attrs: stanza.Attrs{
			From: outbound.ChannelAddr,
			To:   outbound.MemberAddr,
			Type: "chat",
			Id:   outbound.ID,
		},
		Body: outbound.Body,
	}
	return s.Send(msg)
}

func (h *Handler) notifyMember(s xmpp.Sender, to, from, body string) {
	msg := stanza.Message{
		Attrs: stanza.Attrs{
			From: from,
			To:   to,
			Type: "chat",
		},
		Body: body,
	}
	if err := s.Send(msg); err != nil {
		slog.Error("sending error notice", "error", err)
	}
}

// bareAddr strips the resource part of a JID.
func bareAddr(jid string) string {
	bare, _, _ := strings.Cut(jid, "/")
	return bare
}

// ExtractAccountID parses the account UUID out of a gym channel
// address such as "gym-<uuid>@members.domain".
func ExtractAccountID(addr string) (uuid.UUID, error) {
	local, _, _ := strings.Cut(bareAddr(addr), "@")

	idStr, ok := strings.CutPrefix(local, channelAddrPrefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("address %q does not match gym-<uuid> format", addr)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid account UUID in address %q: %w", addr, err)
	}
	return id, nil
}
