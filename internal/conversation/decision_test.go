package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision_Reply(t *testing.T) {
	d, err := ParseDecision(`{"action":"reply","reply":"Glad to hear it!","scoreReason":"positive","outcomeScore":72,"resolved":false}`)
	require.NoError(t, err)
	assert.Equal(t, ActionReply, d.Action)
	assert.Equal(t, "Glad to hear it!", d.Reply)
	assert.Equal(t, 72, d.OutcomeScore)
	assert.False(t, d.Resolved)
}

func TestParseDecision_FencedJSON(t *testing.T) {
	raw := "```json\n{\"action\":\"close\",\"reply\":\"See you Tuesday!\",\"outcomeScore\":90,\"resolved\":true}\n```"
	d, err := ParseDecision(raw)
	require.NoError(t, err)
	assert.Equal(t, ActionClose, d.Action)
	assert.True(t, d.Resolved)
}

func TestParseDecision_CloseWithoutReply(t *testing.T) {
	d, err := ParseDecision(`{"action":"close","outcomeScore":80,"resolved":true}`)
	require.NoError(t, err)
	assert.Empty(t, d.Reply)
}

func TestParseDecision_ReplyRequiresText(t *testing.T) {
	_, err := ParseDecision(`{"action":"reply","outcomeScore":50}`)
	assert.ErrorIs(t, err, ErrMalformedDecision)
}

func TestParseDecision_EscalateRejectsReply(t *testing.T) {
	_, err := ParseDecision(`{"action":"escalate","reply":"calm down","outcomeScore":10}`)
	assert.ErrorIs(t, err, ErrMalformedDecision)
}

func TestParseDecision_ReopenRequiresGoal(t *testing.T) {
	_, err := ParseDecision(`{"action":"reopen"}`)
	assert.ErrorIs(t, err, ErrMalformedDecision)

	d, err := ParseDecision(`{"action":"reopen","newGoal":"rebook the intro session"}`)
	require.NoError(t, err)
	assert.Equal(t, "rebook the intro session", d.NewGoal)
}

func TestParseDecision_UnknownAction(t *testing.T) {
	_, err := ParseDecision(`{"action":"escalate_to_manager"}`)
	assert.ErrorIs(t, err, ErrMalformedDecision)
}

func TestParseDecision_ScoreOutOfRange(t *testing.T) {
	_, err := ParseDecision(`{"action":"reply","reply":"hi","outcomeScore":140}`)
	assert.ErrorIs(t, err, ErrMalformedDecision)

	_, err = ParseDecision(`{"action":"reply","reply":"hi","outcomeScore":-3}`)
	assert.ErrorIs(t, err, ErrMalformedDecision)
}

func TestParseDecision_NotJSON(t *testing.T) {
	_, err := ParseDecision("I think we should wait and see.")
	assert.ErrorIs(t, err, ErrMalformedDecision)
}

func TestDecision_MarshalRoundTrip(t *testing.T) {
	d := &Decision{Action: ActionClose, Reply: "done", ScoreReason: "goal met", OutcomeScore: 95, Resolved: true}
	parsed, err := ParseDecision(d.Marshal())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)
}

func TestDeriveState_Replay(t *testing.T) {
	msgs := []Message{
		{Role: RoleOutbound, Body: "Hey, we miss you!"},
		{Role: RoleInbound, Body: "I hurt my knee"},
		{Role: RoleDecision, Body: (&Decision{Action: ActionReply, Reply: "Sorry to hear", OutcomeScore: 40}).Marshal()},
		{Role: RoleInbound, Body: "Better now, see you soon"},
		{Role: RoleDecision, Body: (&Decision{Action: ActionClose, Reply: "See you!", OutcomeScore: 85, Resolved: true}).Marshal()},
	}
	state := DeriveState(msgs)
	assert.True(t, state.Resolved)
	assert.False(t, state.NeedsReview)
}

func TestDeriveState_ReopenClearsResolved(t *testing.T) {
	msgs := []Message{
		{Role: RoleDecision, Body: (&Decision{Action: ActionClose, OutcomeScore: 85, Resolved: true}).Marshal()},
		{Role: RoleDecision, Body: (&Decision{Action: ActionReopen, NewGoal: "new membership offer"}).Marshal()},
	}
	state := DeriveState(msgs)
	assert.False(t, state.Resolved)
	assert.Equal(t, "new membership offer", state.Goal)
}

func TestDeriveState_EscalateNeedsReview(t *testing.T) {
	msgs := []Message{
		{Role: RoleInbound, Body: "cancel my membership NOW"},
		{Role: RoleDecision, Body: (&Decision{Action: ActionEscalate, ScoreReason: "angry", OutcomeScore: 5}).Marshal()},
	}
	state := DeriveState(msgs)
	assert.True(t, state.NeedsReview)
	assert.False(t, state.Resolved)
}
