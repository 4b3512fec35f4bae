// Package conversation implements the retention agent's decision engine:
// the bounded state machine that turns an inbound member message into a
// recorded decision and, policy permitting, an outbound dispatch.
package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// threadNamespace seeds deterministic thread IDs so every channel adapter
// maps the same (account, member) pair to the same thread.
var threadNamespace = uuid.MustParse("8f1c7a52-3b0e-4d5f-9a6b-2e8d4c1f7a90")

// ThreadIDFor derives the thread ID for a member conversation. Member
// addresses are case-insensitive.
func ThreadIDFor(accountID uuid.UUID, memberAddr string) uuid.UUID {
	return uuid.NewSHA1(threadNamespace, []byte(accountID.String()+"/"+strings.ToLower(memberAddr)))
}

// Role identifies who produced a message row.
type Role string

const (
	// RoleOutbound is a message the agent sent (or queued) to the member.
	RoleOutbound Role = "outbound"
	// RoleInbound is a message from the member.
	RoleInbound Role = "inbound"
	// RoleDecision is an audit row holding a serialized Decision. Decision
	// rows are metadata: they are never shown to the model as conversation
	// content and are filtered out of prompt context.
	RoleDecision Role = "agent_decision"
)

// Message is one append-only turn in a thread. Rows are never mutated or
// deleted once written.
type Message struct {
	ID        uuid.UUID `json:"id"`
	ThreadID  uuid.UUID `json:"thread_id"`
	AccountID uuid.UUID `json:"account_id"`
	Role      Role      `json:"role"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// DecisionPayload deserializes the Body of a RoleDecision row. Returns
// (nil, nil) for non-decision rows.
func (m *Message) DecisionPayload() (*Decision, error) {
	if m.Role != RoleDecision {
		return nil, nil
	}
	var d Decision
	if err := json.Unmarshal([]byte(m.Body), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// AutomationLevel is the per-account policy controlling whether
// agent-produced replies dispatch automatically.
type AutomationLevel string

const (
	FullAuto  AutomationLevel = "full_auto"
	Smart     AutomationLevel = "smart"
	DraftOnly AutomationLevel = "draft_only"
)

// SmartScoreThreshold is the minimum outcome score at which the smart
// level auto-dispatches.
const SmartScoreThreshold = 60

// AllowDispatch reports whether a reply with the given outcome score may
// be sent automatically, and the reason when it may not.
func (l AutomationLevel) AllowDispatch(outcomeScore int) (bool, string) {
	switch l {
	case FullAuto:
		return true, ""
	case Smart:
		if outcomeScore >= SmartScoreThreshold {
			return true, ""
		}
		return false, "low_score"
	case DraftOnly:
		return false, "automation_level"
	default:
		// Unknown levels never auto-send; a bad account setting must not
		// cause surprise outbound traffic.
		return false, "automation_level"
	}
}

// ThreadState is derived by replaying a thread's decision rows in order.
// resolved is terminal for the engine; needs_review is an independent side
// flag that escalation sets and nothing clears automatically.
type ThreadState struct {
	Resolved    bool   `json:"resolved"`
	NeedsReview bool   `json:"needs_review"`
	Goal        string `json:"goal,omitempty"`
}

// Apply folds one decision into the state. Close resolves the thread,
// escalate flags it for review, reopen replaces the goal and clears
// resolution.
func (s ThreadState) Apply(d *Decision) ThreadState {
	switch d.Action {
	case ActionClose:
		s.Resolved = true
	case ActionEscalate:
		s.NeedsReview = true
	case ActionReopen:
		s.Resolved = false
		s.Goal = d.NewGoal
	}
	return s
}

// Transcript renders a thread as alternating Agent/Member lines. Decision
// rows are skipped.
func Transcript(msgs []Message) string {
	var sb strings.Builder
	for _, msg := range msgs {
		switch msg.Role {
		case RoleOutbound:
			fmt.Fprintf(&sb, "Agent: %s\n", msg.Body)
		case RoleInbound:
			fmt.Fprintf(&sb, "Member: %s\n", msg.Body)
		}
	}
	return sb.String()
}

// DeriveState replays every decision row in the slice, in order.
func DeriveState(msgs []Message) ThreadState {
	var state ThreadState
	for i := range msgs {
		d, err := msgs[i].DecisionPayload()
		if err != nil || d == nil {
			continue
		}
		state = state.Apply(d)
	}
	return state
}
