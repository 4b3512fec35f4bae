package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rejoinhq/rejoin/internal/llm"
	"github.com/rejoinhq/rejoin/internal/metrics"
	"github.com/rejoinhq/rejoin/internal/sentiment"
	"github.com/rejoinhq/rejoin/internal/skills"
	"github.com/rejoinhq/rejoin/internal/timewindow"
)

// Dispatch is a channel-independent outbound send instruction. It carries
// no transport-specific fields; the dispatcher owns channel formatting.
type Dispatch struct {
	ID         uuid.UUID `json:"id"`
	AccountID  uuid.UUID `json:"account_id"`
	ThreadID   uuid.UUID `json:"thread_id"`
	MemberAddr string    `json:"member_addr"`
	Body       string    `json:"body"`
}

// Dispatcher sends an approved reply over whatever channel the account has
// configured. Failures are reported to the caller but never roll back the
// recorded decision.
type Dispatcher interface {
	Send(ctx context.Context, d Dispatch) error
}

// DeferralQueue holds dispatches suppressed by quiet hours until their
// next eligible send window.
type DeferralQueue interface {
	Defer(ctx context.Context, d Dispatch, due time.Time) error
}

// ApprovalQueue holds replies withheld by the automation policy for
// manual approval.
type ApprovalQueue interface {
	Queue(ctx context.Context, d Dispatch, reason string) error
}

// ThreadContext carries the per-account settings the engine needs for one
// evaluation. The caller resolves it from the account record.
type ThreadContext struct {
	ThreadID        uuid.UUID
	AccountID       uuid.UUID
	MemberAddr      string
	MemberName      string
	Timezone        string
	Automation      AutomationLevel
	TaskDescription string
	LegacyType      string
	Voice           skills.Voice

	// Optional per-account quiet window override.
	QuietStartHour *int
	QuietEndHour   *int
}

// EvalResult reports what one evaluation did. Decision is nil when the
// thread was already resolved (idempotent no-op). DispatchError mirrors
// DispatchErr for API callers, which alert on a recorded-but-unsent
// reply.
type EvalResult struct {
	Decision       *Decision   `json:"decision"`
	State          ThreadState `json:"state"`
	ReplySent      bool        `json:"reply_sent"`
	Withheld       bool        `json:"withheld"`
	WithheldReason string      `json:"withheld_reason,omitempty"`
	Deferred       bool        `json:"deferred"`
	DispatchErr    error       `json:"-"`
	DispatchError  string      `json:"dispatch_error,omitempty"`
}

func (r *EvalResult) setDispatchErr(err error) {
	r.DispatchErr = err
	r.DispatchError = err.Error()
}

// Engine runs the conversation state machine. It owns no goroutines;
// each call is one sequential pipeline and concurrent calls for distinct
// threads need no coordination.
type Engine struct {
	store      Store
	composer   *skills.Composer
	model      llm.Client
	gate       *timewindow.Gate
	dispatcher Dispatcher
	deferrals  DeferralQueue
	approvals  ApprovalQueue

	maxSkills int
	now       func() time.Time
}

func NewEngine(
	store Store,
	composer *skills.Composer,
	model llm.Client,
	gate *timewindow.Gate,
	dispatcher Dispatcher,
	deferrals DeferralQueue,
	approvals ApprovalQueue,
) *Engine {
	return &Engine{
		store:      store,
		composer:   composer,
		model:      model,
		gate:       gate,
		dispatcher: dispatcher,
		deferrals:  deferrals,
		approvals:  approvals,
		maxSkills:  2,
		now:        time.Now,
	}
}

// EvaluateInbound appends the inbound message, asks the model for a
// decision, records it, and applies the automation and quiet-hours gates
// before any dispatch. A resolved thread is an idempotent no-op: the
// inbound message is still recorded, but no decision is produced.
//
// Transport failures from the model propagate unwrapped-decision-free;
// unparseable model output returns an error matching ErrMalformedDecision
// with no state change, so callers can distinguish retry from alert.
func (e *Engine) EvaluateInbound(ctx context.Context, tc ThreadContext, inboundText string) (*EvalResult, error) {
	inbound := &Message{
		ThreadID:  tc.ThreadID,
		AccountID: tc.AccountID,
		Role:      RoleInbound,
		Body:      inboundText,
	}
	if err := e.store.Append(ctx, inbound); err != nil {
		return nil, err
	}

	thread, err := e.store.ListThread(ctx, tc.ThreadID, true)
	if err != nil {
		return nil, err
	}
	state := DeriveState(thread)
	if state.Resolved {
		slog.Debug("thread already resolved, skipping evaluation", "thread_id", tc.ThreadID)
		return &EvalResult{State: state}, nil
	}
	if tc.TaskDescription == "" {
		tc.TaskDescription = state.Goal
	}

	system, user := e.buildEvaluationPrompt(ctx, tc, thread)

	raw, err := e.model.Complete(ctx, llm.Request{System: system, User: user})
	if err != nil {
		return nil, fmt.Errorf("evaluating thread %s: %w", tc.ThreadID, err)
	}

	decision, err := ParseDecision(raw)
	if err != nil {
		metrics.DecisionFailuresTotal.Inc()
		slog.Error("model response did not parse into a decision",
			"thread_id", tc.ThreadID, "error", err, "raw", truncate(raw, 500))
		return nil, err
	}

	return e.applyDecision(ctx, tc, state, decision)
}

// applyDecision records the decision row and branches on the action. The
// decision row and any outbound row commit in one transaction; dispatch
// happens after commit and its failure is reported, not rolled back.
func (e *Engine) applyDecision(ctx context.Context, tc ThreadContext, state ThreadState, decision *Decision) (*EvalResult, error) {
	result := &EvalResult{Decision: decision, State: state.Apply(decision)}

	rows := []*Message{{
		ThreadID:  tc.ThreadID,
		AccountID: tc.AccountID,
		Role:      RoleDecision,
		Body:      decision.Marshal(),
	}}

	var toSend *Dispatch
	if decision.Reply != "" && decision.Action != ActionEscalate {
		d := Dispatch{
			ID:         uuid.New(),
			AccountID:  tc.AccountID,
			ThreadID:   tc.ThreadID,
			MemberAddr: tc.MemberAddr,
			Body:       decision.Reply,
		}

		allowed, reason := dispatchAllowed(tc.Automation, decision)
		switch {
		case !allowed:
			result.Withheld = true
			result.WithheldReason = reason
			metrics.RepliesWithheldTotal.WithLabelValues(reason).Inc()
			if e.approvals != nil {
				if err := e.approvals.Queue(ctx, d, reason); err != nil {
					slog.Error("queueing reply for approval", "error", err, "thread_id", tc.ThreadID)
				}
			}
		case e.gateFor(tc).IsQuietHours(tc.Timezone, e.now()):
			// Deferred, not dropped: the release loop sends it at the next
			// eligible window.
			result.Deferred = true
			metrics.RepliesWithheldTotal.WithLabelValues("quiet_hours").Inc()
			if e.deferrals != nil {
				due := e.gateFor(tc).NextSendWindow(tc.Timezone, e.now())
				if err := e.deferrals.Defer(ctx, d, due); err != nil {
					slog.Error("deferring dispatch", "error", err, "thread_id", tc.ThreadID)
				}
			}
		default:
			rows = append(rows, &Message{
				ThreadID:  tc.ThreadID,
				AccountID: tc.AccountID,
				Role:      RoleOutbound,
				Body:      decision.Reply,
			})
			toSend = &d
		}
	}

	if err := e.store.AppendMany(ctx, rows...); err != nil {
		return nil, err
	}
	metrics.DecisionsTotal.WithLabelValues(string(decision.Action)).Inc()

	if toSend != nil {
		if err := e.dispatcher.Send(ctx, *toSend); err != nil {
			metrics.DispatchesTotal.WithLabelValues("failed").Inc()
			result.setDispatchErr(fmt.Errorf("dispatching reply for thread %s: %w", tc.ThreadID, err))
		} else {
			metrics.DispatchesTotal.WithLabelValues("sent").Inc()
			result.ReplySent = true
		}
	}

	return result, nil
}

// gateFor applies any per-account quiet window override.
func (e *Engine) gateFor(tc ThreadContext) *timewindow.Gate {
	if tc.QuietStartHour != nil && tc.QuietEndHour != nil {
		return e.gate.Override(*tc.QuietStartHour, *tc.QuietEndHour)
	}
	return e.gate
}

// dispatchAllowed applies the automation-level policy. Replies get the
// full gate; close messages are withheld only on draft_only.
func dispatchAllowed(level AutomationLevel, d *Decision) (bool, string) {
	if d.Action == ActionClose {
		if level == DraftOnly {
			return false, "automation_level"
		}
		return true, ""
	}
	return level.AllowDispatch(d.OutcomeScore)
}

// StartOutreach drafts and (policy permitting) sends the first outbound
// message of a new thread toward the given goal.
func (e *Engine) StartOutreach(ctx context.Context, tc ThreadContext, goal string) (*EvalResult, error) {
	selected := e.composer.Index().Select(tc.TaskDescription, skills.SelectOptions{
		ExplicitType: tc.LegacyType,
		MaxSkills:    e.maxSkills,
	})
	system := e.composer.Compose(ctx, tc.AccountID, tc.MemberAddr, tc.Voice, selected)

	var sb strings.Builder
	sb.WriteString("Draft the opening message of a new conversation with this member.\n")
	if tc.MemberName != "" {
		fmt.Fprintf(&sb, "Member name: %s\n", tc.MemberName)
	}
	fmt.Fprintf(&sb, "Goal: %s\n", goal)
	sb.WriteString("Reply with the message text only, no JSON, no preamble.")

	raw, err := e.model.Complete(ctx, llm.Request{System: system, User: sb.String()})
	if err != nil {
		return nil, fmt.Errorf("drafting outreach for thread %s: %w", tc.ThreadID, err)
	}
	draft := strings.TrimSpace(raw)
	if draft == "" {
		return nil, fmt.Errorf("%w: empty outreach draft", ErrMalformedDecision)
	}

	result := &EvalResult{}
	d := Dispatch{
		ID:         uuid.New(),
		AccountID:  tc.AccountID,
		ThreadID:   tc.ThreadID,
		MemberAddr: tc.MemberAddr,
		Body:       draft,
	}

	if tc.Automation == DraftOnly {
		result.Withheld = true
		result.WithheldReason = "automation_level"
		metrics.RepliesWithheldTotal.WithLabelValues("automation_level").Inc()
		if e.approvals != nil {
			if err := e.approvals.Queue(ctx, d, "automation_level"); err != nil {
				slog.Error("queueing outreach for approval", "error", err, "thread_id", tc.ThreadID)
			}
		}
		return result, nil
	}

	if e.gateFor(tc).IsQuietHours(tc.Timezone, e.now()) {
		result.Deferred = true
		metrics.RepliesWithheldTotal.WithLabelValues("quiet_hours").Inc()
		if e.deferrals != nil {
			due := e.gateFor(tc).NextSendWindow(tc.Timezone, e.now())
			if err := e.deferrals.Defer(ctx, d, due); err != nil {
				slog.Error("deferring outreach", "error", err, "thread_id", tc.ThreadID)
			}
		}
		return result, nil
	}

	if err := e.store.Append(ctx, &Message{
		ThreadID:  tc.ThreadID,
		AccountID: tc.AccountID,
		Role:      RoleOutbound,
		Body:      draft,
	}); err != nil {
		return nil, err
	}
	if err := e.dispatcher.Send(ctx, d); err != nil {
		metrics.DispatchesTotal.WithLabelValues("failed").Inc()
		result.setDispatchErr(err)
		return result, nil
	}
	metrics.DispatchesTotal.WithLabelValues("sent").Inc()
	result.ReplySent = true
	return result, nil
}

// Reopen records an explicit reopen decision with a new goal. This is the
// only path that clears a resolved thread; new inbound traffic never does.
func (e *Engine) Reopen(ctx context.Context, tc ThreadContext, newGoal string) (ThreadState, error) {
	decision := &Decision{Action: ActionReopen, NewGoal: newGoal, Resolved: false}
	if err := e.store.Append(ctx, &Message{
		ThreadID:  tc.ThreadID,
		AccountID: tc.AccountID,
		Role:      RoleDecision,
		Body:      decision.Marshal(),
	}); err != nil {
		return ThreadState{}, err
	}
	metrics.DecisionsTotal.WithLabelValues(string(ActionReopen)).Inc()

	thread, err := e.store.ListThread(ctx, tc.ThreadID, true)
	if err != nil {
		return ThreadState{}, err
	}
	return DeriveState(thread), nil
}

// State derives the current thread state from the stored log.
func (e *Engine) State(ctx context.Context, threadID uuid.UUID) (ThreadState, error) {
	thread, err := e.store.ListThread(ctx, threadID, true)
	if err != nil {
		return ThreadState{}, err
	}
	return DeriveState(thread), nil
}

const evaluationInstructions = `Evaluate the member's latest message and decide the agent's next move.
Respond with a single JSON object, no other text:
{
  "action": "reply" | "close" | "escalate" | "reopen",
  "reply": "message text (required for reply, optional for close)",
  "newGoal": "required when action is reopen",
  "scoreReason": "one short sentence justifying the score",
  "outcomeScore": 0-100,
  "resolved": true | false
}
Use "close" when the goal is achieved or the conversation is finished.
Use "escalate" when a human must take over (anger, billing disputes, cancellation threats you cannot address).
Never include channel formatting such as subject lines or signatures.`

// buildEvaluationPrompt composes the system layer via the skill composer
// and renders the transcript, with decision rows excluded, as the user
// message.
func (e *Engine) buildEvaluationPrompt(ctx context.Context, tc ThreadContext, thread []Message) (system, user string) {
	selected := e.composer.Index().Select(tc.TaskDescription, skills.SelectOptions{
		ExplicitType: tc.LegacyType,
		MaxSkills:    e.maxSkills,
	})
	system = e.composer.Compose(ctx, tc.AccountID, tc.MemberAddr, tc.Voice, selected)

	var sb strings.Builder
	sb.WriteString(evaluationInstructions)
	sb.WriteString("\n\nConversation so far:\n")
	sb.WriteString(Transcript(thread))
	if tone := latestInboundTone(thread); tone != "" {
		sb.WriteString("\n\nMember tone reads as ")
		sb.WriteString(tone)
		sb.WriteString(".")
	}
	return system, sb.String()
}

// latestInboundTone scores the newest member message. Neutral adds
// nothing to the prompt.
func latestInboundTone(thread []Message) string {
	for i := len(thread) - 1; i >= 0; i-- {
		if thread[i].Role != RoleInbound {
			continue
		}
		if res := sentiment.Score(thread[i].Body); res.Label != sentiment.Neutral {
			return string(res.Label)
		}
		return ""
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
