package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamMessages = "REJOIN_MESSAGES"
	StreamEvents   = "REJOIN_EVENTS"
)

// Subject constants.
const (
	SubjectInboundMessage  = "rejoin.messages.inbound"
	SubjectOutboundMessage = "rejoin.messages.outbound"
	SubjectDecisionEvent   = "rejoin.events.decision"
	SubjectAuditEvent      = "rejoin.events.audit"
)

// InboundMessage is published when a member message arrives on any channel.
// ChannelAddr identifies the account-side endpoint the member wrote to.
type InboundMessage struct {
	ID          string    `json:"id"`
	ChannelAddr string    `json:"channel_addr"`
	MemberAddr  string    `json:"member_addr"`
	MemberName  string    `json:"member_name,omitempty"`
	Body        string    `json:"body"`
	ReceivedAt  time.Time `json:"received_at"`
}

// OutboundMessage is published to deliver a reply over the member's channel.
type OutboundMessage struct {
	ID          string    `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	ThreadID    uuid.UUID `json:"thread_id"`
	MemberAddr  string    `json:"member_addr"`
	ChannelAddr string    `json:"channel_addr,omitempty"`
	Body        string    `json:"body"`
}

// DecisionEvent is published after each recorded agent decision. Member
// identity rides along so downstream consumers need no thread lookup.
type DecisionEvent struct {
	AccountID  uuid.UUID `json:"account_id"`
	ThreadID   uuid.UUID `json:"thread_id"`
	MemberAddr string    `json:"member_addr"`
	MemberName string    `json:"member_name,omitempty"`
	Action     string    `json:"action"`
	Score      int       `json:"score"`
	Resolved   bool      `json:"resolved"`
	Timestamp  time.Time `json:"timestamp"`
}

// AuditEvent is published for compliance/audit logging.
type AuditEvent struct {
	AccountID    uuid.UUID `json:"account_id"`
	EventType    string    `json:"event_type"`
	Severity     string    `json:"severity"` // info, warn, error
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	Timestamp    time.Time `json:"timestamp"`
}
