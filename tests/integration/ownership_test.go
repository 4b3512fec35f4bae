//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnershipIsolation(t *testing.T) {
	env := SetupTestEnv(t)

	emailA := fmt.Sprintf("owner-a-%d@example.com", uniqueID())
	emailB := fmt.Sprintf("owner-b-%d@example.com", uniqueID())
	RegisterOperator(t, env, emailA, "password123")
	RegisterOperator(t, env, emailB, "password123")

	tokenA := LoginOperator(t, env, emailA, "password123")
	tokenB := LoginOperator(t, env, emailB, "password123")

	// Operator A creates an account
	dataA := CreateAccount(t, env, tokenA, map[string]any{"gym_name": "Operator A Gym"})
	accountAID := dataA["id"].(string)

	t.Run("owner can access own account", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/accounts/"+accountAID, nil, tokenA)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("other operator cannot GET account", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/accounts/"+accountAID, nil, tokenB)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("other operator cannot UPDATE account", func(t *testing.T) {
		updateBody := map[string]any{"gym_name": "Hijacked Gym"}
		resp := DoRequest(t, env, "PUT", "/api/v1/accounts/"+accountAID, updateBody, tokenB)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("other operator cannot DELETE account", func(t *testing.T) {
		resp := DoRequest(t, env, "DELETE", "/api/v1/accounts/"+accountAID, nil, tokenB)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("other operator cannot reach nested resources", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/accounts/"+accountAID+"/threads", nil, tokenB)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = DoRequest(t, env, "GET", "/api/v1/accounts/"+accountAID+"/memories", nil, tokenB)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = DoRequest(t, env, "GET", "/api/v1/accounts/"+accountAID+"/quota", nil, tokenB)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("listing only returns own accounts", func(t *testing.T) {
		CreateAccount(t, env, tokenB, map[string]any{"gym_name": "Operator B Gym"})

		listResp := DoRequest(t, env, "GET", "/api/v1/accounts", nil, tokenA)
		require.Equal(t, http.StatusOK, listResp.StatusCode)

		listResult := ParseResponse(t, listResp)
		accounts := listResult["data"].([]any)
		for _, a := range accounts {
			account := a.(map[string]any)
			profile := account["profile"].(map[string]any)
			assert.NotEqual(t, "Operator B Gym", profile["gym_name"],
				"Operator A should not see Operator B's accounts")
		}
	})

	t.Run("unauthenticated access denied", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/accounts/"+accountAID, nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid token access denied", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/accounts/"+accountAID, nil, "invalid-jwt-token")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
