package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/rejoinhq/rejoin/internal/conversation"
	inats "github.com/rejoinhq/rejoin/internal/nats"
)

// DecisionPublisher forwards recorded decisions onto the event stream.
// It implements conversation.DecisionNotifier for the HTTP handlers and
// is used directly by the orchestrator's message loop.
type DecisionPublisher struct {
	publisher *inats.Publisher
}

// NewDecisionPublisher creates a new DecisionPublisher.
func NewDecisionPublisher(publisher *inats.Publisher) *DecisionPublisher {
	return &DecisionPublisher{publisher: publisher}
}

// NotifyDecision publishes a DecisionEvent. Publish failures are logged,
// never surfaced: the decision is already durably recorded.
func (p *DecisionPublisher) NotifyDecision(ctx context.Context, tc conversation.ThreadContext, result *conversation.EvalResult) {
	if result == nil || result.Decision == nil {
		return
	}
	event := inats.DecisionEvent{
		AccountID:  tc.AccountID,
		ThreadID:   tc.ThreadID,
		MemberAddr: tc.MemberAddr,
		MemberName: tc.MemberName,
		Action:     string(result.Decision.Action),
		Score:      result.Decision.OutcomeScore,
		Resolved:   result.State.Resolved,
		Timestamp:  time.Now().UTC(),
	}
	if err := p.publisher.PublishDecisionEvent(ctx, event); err != nil {
		slog.Error("publishing decision event", "error", err, "thread_id", tc.ThreadID)
	}
}
