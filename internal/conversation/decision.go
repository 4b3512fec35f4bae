package conversation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rejoinhq/rejoin/internal/llm"
)

// Action is the closed set of moves the model may make for one turn.
type Action string

const (
	ActionReply    Action = "reply"
	ActionClose    Action = "close"
	ActionEscalate Action = "escalate"
	ActionReopen   Action = "reopen"
)

// Decision is the model's structured output for one evaluated inbound
// message. Exactly one decision is produced per evaluation and it is
// immutable once recorded.
type Decision struct {
	Action       Action `json:"action"`
	Reply        string `json:"reply,omitempty"`
	NewGoal      string `json:"newGoal,omitempty"`
	ScoreReason  string `json:"scoreReason,omitempty"`
	OutcomeScore int    `json:"outcomeScore"`
	Resolved     bool   `json:"resolved"`
}

// ErrMalformedDecision marks a model response that could not be turned
// into a valid decision. Callers must treat it as "no decision produced"
// (no state change, nothing sent) and distinctly from transport errors,
// so they can decide whether to retry or alert.
var ErrMalformedDecision = errors.New("malformed agent decision")

// ParseDecision parses raw model output into a validated Decision. The
// output may be wrapped in a fenced code block. Unknown JSON fields are
// ignored. A decision whose shape is invalid for its action (reply without
// text, reopen without a goal, unknown action) is rejected here at the
// parse boundary rather than allowed to flow into the engine.
func ParseDecision(raw string) (*Decision, error) {
	payload := llm.ExtractJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedDecision)
	}

	var d Decision
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}
	if err := d.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}
	return &d, nil
}

func (d *Decision) validate() error {
	switch d.Action {
	case ActionReply:
		if d.Reply == "" {
			return errors.New("reply action requires reply text")
		}
	case ActionClose:
		// Reply is optional on close.
	case ActionEscalate:
		if d.Reply != "" {
			return errors.New("escalate action must not carry a reply")
		}
	case ActionReopen:
		if d.NewGoal == "" {
			return errors.New("reopen action requires newGoal")
		}
	default:
		return fmt.Errorf("unknown action %q", d.Action)
	}
	if d.OutcomeScore < 0 || d.OutcomeScore > 100 {
		return fmt.Errorf("outcomeScore %d out of range 0-100", d.OutcomeScore)
	}
	return nil
}

// Marshal serializes the decision for storage in a RoleDecision row.
func (d *Decision) Marshal() string {
	data, _ := json.Marshal(d)
	return string(data)
}
