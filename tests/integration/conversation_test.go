//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationFlow_FullAuto(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("conv-auto-%d@example.com", uniqueID())
	RegisterOperator(t, env, email, "password123")
	token := LoginOperator(t, env, email, "password123")

	account := CreateAccount(t, env, token, map[string]any{
		"gym_name":         "Auto Gym",
		"automation_level": "full_auto",
	})
	accountID := account["id"].(string)
	memberAddr := "carla@members.rejoin.test"

	// Open a thread via outreach
	// Outreach expects a plain drafted message, not a decision object
	env.Model.Script(`Hey Carla! We have not seen you since March. The 7am spin class misses you.`)

	outreachBody := map[string]any{
		"account_id":  accountID,
		"member_addr": memberAddr,
		"member_name": "Carla",
		"goal":        "bring Carla back after 3 months of absence",
	}
	resp := DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/threads/outreach", accountID), outreachBody, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	threadID := data["thread_id"].(string)
	require.NotEmpty(t, threadID)

	outreach := data["result"].(map[string]any)
	assert.Equal(t, true, outreach["reply_sent"])

	// The reply went out through the dispatcher
	sent := env.Dispatcher.Sent()
	require.NotEmpty(t, sent)
	last := sent[len(sent)-1]
	assert.Equal(t, memberAddr, last.MemberAddr)
	assert.Contains(t, last.Body, "spin class")

	t.Run("inbound evaluation replies and records", func(t *testing.T) {
		env.Model.Script(`{"action":"reply","reply":"Tuesday 7am works! I will save you a bike.","outcomeScore":70,"resolved":false}`)

		evalBody := map[string]any{
			"account_id":  accountID,
			"member_addr": memberAddr,
			"member_name": "Carla",
			"text":        "Maybe, is the spin class still on Tuesdays?",
		}
		resp := DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/threads/%s/evaluate", accountID, threadID), evalBody, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		result := ParseResponse(t, resp)
		data := result["data"].(map[string]any)
		assert.Equal(t, true, data["reply_sent"])

		decision := data["decision"].(map[string]any)
		assert.Equal(t, "reply", decision["action"])
		assert.Equal(t, float64(70), decision["outcomeScore"])
	})

	t.Run("messages endpoint hides decision rows by default", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", fmt.Sprintf("/api/v1/accounts/%s/threads/%s/messages", accountID, threadID), nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		result := ParseResponse(t, resp)
		msgs := result["data"].([]any)
		require.NotEmpty(t, msgs)
		for _, m := range msgs {
			msg := m.(map[string]any)
			assert.NotEqual(t, "agent_decision", msg["role"])
		}

		// The audit view includes them
		resp = DoRequest(t, env, "GET", fmt.Sprintf("/api/v1/accounts/%s/threads/%s/messages?include_decisions=true", accountID, threadID), nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		auditResult := ParseResponse(t, resp)
		auditMsgs := auditResult["data"].([]any)
		assert.Greater(t, len(auditMsgs), len(msgs))
	})

	t.Run("close resolves the thread", func(t *testing.T) {
		env.Model.Script(`{"action":"close","reply":"Amazing, see you Tuesday!","scoreReason":"member committed to a visit","outcomeScore":85,"resolved":true}`)

		evalBody := map[string]any{
			"account_id":  accountID,
			"member_addr": memberAddr,
			"text":        "Deal, see you Tuesday.",
		}
		resp := DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/threads/%s/evaluate", accountID, threadID), evalBody, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		stateResp := DoRequest(t, env, "GET", fmt.Sprintf("/api/v1/accounts/%s/threads/%s/state", accountID, threadID), nil, token)
		require.Equal(t, http.StatusOK, stateResp.StatusCode)
		stateResult := ParseResponse(t, stateResp)
		state := stateResult["data"].(map[string]any)
		assert.Equal(t, true, state["resolved"])
	})

	t.Run("resolved thread is an idempotent no-op", func(t *testing.T) {
		evalBody := map[string]any{
			"account_id":  accountID,
			"member_addr": memberAddr,
			"text":        "One more thing, thanks!",
		}
		resp := DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/threads/%s/evaluate", accountID, threadID), evalBody, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		result := ParseResponse(t, resp)
		data := result["data"].(map[string]any)
		assert.Nil(t, data["decision"])
	})

	t.Run("reopen clears resolution with a new goal", func(t *testing.T) {
		reopenBody := map[string]any{
			"account_id": accountID,
			"new_goal":   "confirm Carla attended and upsell personal training",
		}
		resp := DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/threads/%s/reopen", accountID, threadID), reopenBody, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		result := ParseResponse(t, resp)
		state := result["data"].(map[string]any)
		assert.Equal(t, false, state["resolved"])
		assert.Contains(t, state["goal"], "personal training")
	})

	t.Run("thread appears in listing", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", fmt.Sprintf("/api/v1/accounts/%s/threads", accountID), nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		result := ParseResponse(t, resp)
		threads := result["data"].([]any)
		found := false
		for _, id := range threads {
			if id.(string) == threadID {
				found = true
			}
		}
		assert.True(t, found)
	})
}

func TestConversationFlow_DraftOnlyApproval(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("conv-draft-%d@example.com", uniqueID())
	RegisterOperator(t, env, email, "password123")
	token := LoginOperator(t, env, email, "password123")

	account := CreateAccount(t, env, token, map[string]any{
		"gym_name": "Careful Gym",
		// automation_level defaults to draft_only
	})
	accountID := account["id"].(string)
	memberAddr := "diego@members.rejoin.test"

	sentBefore := len(env.Dispatcher.Sent())

	env.Model.Script(`Hi Diego, your card on file was declined. Want a link to update it?`)

	outreachBody := map[string]any{
		"account_id":  accountID,
		"member_addr": memberAddr,
		"member_name": "Diego",
		"goal":        "recover a failed payment",
	}
	resp := DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/threads/outreach", accountID), outreachBody, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	outreach := data["result"].(map[string]any)
	assert.Equal(t, true, outreach["withheld"])
	assert.Equal(t, false, outreach["reply_sent"])

	// Nothing was dispatched
	assert.Len(t, env.Dispatcher.Sent(), sentBefore)

	// The withheld reply is waiting for approval
	resp = DoRequest(t, env, "GET", fmt.Sprintf("/api/v1/accounts/%s/dispatches", accountID), nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pendingResult := ParseResponse(t, resp)
	pending := pendingResult["data"].([]any)
	require.Len(t, pending, 1)

	dispatchEntry := pending[0].(map[string]any)
	dispatchID := dispatchEntry["id"].(string)
	assert.Equal(t, memberAddr, dispatchEntry["member_addr"])
	assert.Equal(t, "pending", dispatchEntry["status"])

	t.Run("approving sends the reply", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/dispatches/%s/approve", accountID, dispatchID), nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		sent := env.Dispatcher.Sent()
		require.Len(t, sent, sentBefore+1)
		assert.Contains(t, sent[len(sent)-1].Body, "update it")

		// Approved dispatches leave the pending list
		listResp := DoRequest(t, env, "GET", fmt.Sprintf("/api/v1/accounts/%s/dispatches", accountID), nil, token)
		listResult := ParseResponse(t, listResp)
		assert.Empty(t, listResult["data"])
	})

	t.Run("rejecting a dispatch discards it", func(t *testing.T) {
		env.Model.Script(`{"action":"reply","reply":"Second nudge about the card.","outcomeScore":35,"resolved":false}`)

		evalBody := map[string]any{
			"account_id":  accountID,
			"member_addr": memberAddr,
			"text":        "I will get to it eventually",
		}
		// Reuse the thread created by outreach
		threadID := dispatchEntry["thread_id"].(string)
		resp := DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/threads/%s/evaluate", accountID, threadID), evalBody, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		listResp := DoRequest(t, env, "GET", fmt.Sprintf("/api/v1/accounts/%s/dispatches", accountID), nil, token)
		listResult := ParseResponse(t, listResp)
		pending := listResult["data"].([]any)
		require.Len(t, pending, 1)
		rejectID := pending[0].(map[string]any)["id"].(string)

		sentBefore := len(env.Dispatcher.Sent())
		resp = DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/dispatches/%s/reject", accountID, rejectID), nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		assert.Len(t, env.Dispatcher.Sent(), sentBefore)
	})
}

func TestConversationFlow_QuietHoursDefersDispatch(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("conv-quiet-%d@example.com", uniqueID())
	RegisterOperator(t, env, email, "password123")
	token := LoginOperator(t, env, email, "password123")

	// Account whose quiet window covers the current hour.
	hour := time.Now().UTC().Hour()
	account := CreateAccount(t, env, token, map[string]any{
		"gym_name":         "Night Owl Gym",
		"timezone":         "UTC",
		"automation_level": "full_auto",
		"quiet_start_hour": hour,
		"quiet_end_hour":   (hour + 1) % 24,
	})
	accountID := account["id"].(string)

	env.Model.Script(`Late night check-in.`)

	outreachBody := map[string]any{
		"account_id":  accountID,
		"member_addr": "nina@members.rejoin.test",
		"goal":        "re-engage Nina",
	}
	sentBefore := len(env.Dispatcher.Sent())
	resp := DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/threads/outreach", accountID), outreachBody, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	outreach := data["result"].(map[string]any)
	assert.Equal(t, true, outreach["deferred"])
	assert.Equal(t, false, outreach["reply_sent"])
	assert.Len(t, env.Dispatcher.Sent(), sentBefore)
}

func TestConversationMalformedDecision(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("conv-bad-%d@example.com", uniqueID())
	RegisterOperator(t, env, email, "password123")
	token := LoginOperator(t, env, email, "password123")

	account := CreateAccount(t, env, token, map[string]any{
		"gym_name":         "Glitch Gym",
		"automation_level": "full_auto",
	})
	accountID := account["id"].(string)
	memberAddr := "sam@members.rejoin.test"

	env.Model.Script(`Welcome to Glitch Gym!`)
	outreachBody := map[string]any{
		"account_id":  accountID,
		"member_addr": memberAddr,
		"goal":        "say hi",
	}
	resp := DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/threads/outreach", accountID), outreachBody, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)
	threadID := data["thread_id"].(string)

	// Model returns prose instead of a decision
	env.Model.Script(`Sure! I think we should reply with something friendly.`)

	evalBody := map[string]any{
		"account_id":  accountID,
		"member_addr": memberAddr,
		"text":        "hello?",
	}
	resp = DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/threads/%s/evaluate", accountID, threadID), evalBody, token)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	ParseResponse(t, resp) // drain body
}
