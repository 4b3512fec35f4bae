//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rejoinhq/rejoin/internal/memory"
)

func seedCard(t *testing.T, env *TestEnv, accountID uuid.UUID, memberID, content, category, scope string) *memory.Card {
	t.Helper()
	emb, err := stubEmbedder{}.Embed(context.Background(), content)
	require.NoError(t, err)

	card := &memory.Card{
		AccountID:  accountID,
		MemberID:   memberID,
		Content:    content,
		Category:   category,
		Scope:      scope,
		Importance: 3,
		Confidence: 0.9,
		Embedding:  emb,
	}
	repo := memory.NewPostgresRepository(env.Pool)
	require.NoError(t, repo.Create(context.Background(), card))
	return card
}

func TestMemory_ListAndDelete(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("mem-crud-%d@example.com", uniqueID())
	RegisterOperator(t, env, email, "password123")
	token := LoginOperator(t, env, email, "password123")

	account := CreateAccount(t, env, token, map[string]any{"gym_name": "Memory Gym"})
	accountID, err := uuid.Parse(account["id"].(string))
	require.NoError(t, err)

	// Empty to start
	resp := DoRequest(t, env, "GET", fmt.Sprintf("/api/v1/accounts/%s/memories", accountID), nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), ParseResponse(t, resp)["total_count"])

	card := seedCard(t, env, accountID, "carla@members.rejoin.test",
		"Carla prefers morning classes", "preference", "member")

	resp = DoRequest(t, env, "GET", fmt.Sprintf("/api/v1/accounts/%s/memories", accountID), nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listResult := ParseResponse(t, resp)
	assert.Equal(t, float64(1), listResult["total_count"])

	cards := listResult["data"].([]any)
	require.Len(t, cards, 1)
	first := cards[0].(map[string]any)
	assert.Equal(t, "Carla prefers morning classes", first["content"])
	assert.Equal(t, "preference", first["category"])

	// Delete it
	resp = DoRequest(t, env, "DELETE", fmt.Sprintf("/api/v1/accounts/%s/memories/%s", accountID, card.ID), nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ParseResponse(t, resp) // drain body

	resp = DoRequest(t, env, "GET", fmt.Sprintf("/api/v1/accounts/%s/memories", accountID), nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), ParseResponse(t, resp)["total_count"])
}

func TestMemory_ManualCreate(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("mem-create-%d@example.com", uniqueID())
	RegisterOperator(t, env, email, "password123")
	token := LoginOperator(t, env, email, "password123")

	account := CreateAccount(t, env, token, map[string]any{"gym_name": "Note Gym"})
	accountID := account["id"].(string)

	resp := DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/memories", accountID), map[string]any{
		"content":    "Front desk closes at 9pm on weekends",
		"category":   "gym_context",
		"scope":      "global",
		"importance": 4,
	}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, "gym_context", created["category"])
	assert.Equal(t, "global", created["scope"])
	assert.NotEmpty(t, created["id"])

	// member scope requires a member_id
	resp = DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/memories", accountID), map[string]any{
		"content": "Prefers text over email",
		"scope":   "member",
	}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// content is required
	resp = DoRequest(t, env, "POST", fmt.Sprintf("/api/v1/accounts/%s/memories", accountID), map[string]any{
		"category": "preference",
	}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "GET", fmt.Sprintf("/api/v1/accounts/%s/memories", accountID), nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), ParseResponse(t, resp)["total_count"])
}

func TestMemory_SimilaritySearch(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("mem-search-%d@example.com", uniqueID())
	RegisterOperator(t, env, email, "password123")
	token := LoginOperator(t, env, email, "password123")

	account := CreateAccount(t, env, token, map[string]any{"gym_name": "Search Gym"})
	accountID, err := uuid.Parse(account["id"].(string))
	require.NoError(t, err)

	seedCard(t, env, accountID, "diego@members.rejoin.test",
		"Diego had a knee injury last spring", "member_fact", "member")
	seedCard(t, env, accountID, "",
		"The gym runs a referral discount in January", "gym_context", "global")

	// The stub embedder is deterministic, so searching with a card's exact
	// content is a perfect match.
	resp := DoRequest(t, env, "POST",
		fmt.Sprintf("/api/v1/accounts/%s/memories/search?q=%s", accountID,
			"Diego+had+a+knee+injury+last+spring"), nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := ParseResponse(t, resp)
	results := result["data"].([]any)
	require.NotEmpty(t, results)

	top := results[0].(map[string]any)
	topCard := top["card"].(map[string]any)
	assert.Equal(t, "Diego had a knee injury last spring", topCard["content"])
	assert.Greater(t, top["similarity"].(float64), 0.9)
}

func TestMemory_ExtractionPipeline(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	email := fmt.Sprintf("mem-extract-%d@example.com", uniqueID())
	RegisterOperator(t, env, email, "password123")
	token := LoginOperator(t, env, email, "password123")

	account := CreateAccount(t, env, token, map[string]any{"gym_name": "Extract Gym"})
	accountID, err := uuid.Parse(account["id"].(string))
	require.NoError(t, err)

	// With no cards on file the consolidation pass is skipped, so only the
	// extraction response is consumed.
	env.Model.Script(`[{"content":"Nina travels for work every February","category":"member_fact","scope":"member","importance":4,"evidence":"I'm away all of Feb","confidence":0.8}]`)

	created, updated, err := env.MemorySvc.ProcessThread(ctx, accountID,
		"nina@members.rejoin.test", "Nina",
		"Member: I'm away all of Feb, work travel again.\nAgent: Safe travels! See you in March.\n")
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 0, updated)

	resp := DoRequest(t, env, "GET", fmt.Sprintf("/api/v1/accounts/%s/memories", accountID), nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listResult := ParseResponse(t, resp)
	assert.Equal(t, float64(1), listResult["total_count"])

	cards := listResult["data"].([]any)
	first := cards[0].(map[string]any)
	assert.Contains(t, first["content"], "February")
	assert.Equal(t, "nina@members.rejoin.test", first["member_id"])
}

func TestMemory_OwnershipIsolation(t *testing.T) {
	env := SetupTestEnv(t)

	emailA := fmt.Sprintf("mem-iso-a-%d@example.com", uniqueID())
	emailB := fmt.Sprintf("mem-iso-b-%d@example.com", uniqueID())
	RegisterOperator(t, env, emailA, "password123")
	RegisterOperator(t, env, emailB, "password123")
	tokenA := LoginOperator(t, env, emailA, "password123")
	tokenB := LoginOperator(t, env, emailB, "password123")

	account := CreateAccount(t, env, tokenA, map[string]any{"gym_name": "Private Gym"})
	accountID, err := uuid.Parse(account["id"].(string))
	require.NoError(t, err)

	seedCard(t, env, accountID, "", "Members respond well to progress photos", "learned_pattern", "global")

	resp := DoRequest(t, env, "GET", fmt.Sprintf("/api/v1/accounts/%s/memories", accountID), nil, tokenB)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	ParseResponse(t, resp) // drain body
}
