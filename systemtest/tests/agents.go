package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentDirectory(t *testing.T, router *gin.Engine) {
	token := registerAndLogin(t, router, "dirowner")
	agentID, apiKey := enrollAgent(t, router, token, "dir-rover")

	t.Run("list shows owned agent", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/agents", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)

		var list dto.ListAgentsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))

		var found bool
		for _, agent := range list.Agents {
			if agent.ID == agentID {
				found = true
				assert.Equal(t, "dir-rover", agent.Name)
				assert.Equal(t, "rover", agent.RobotType)
			}
		}
		assert.True(t, found, "enrolled agent missing from list")
	})

	t.Run("get scoped to owner", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/agents/"+agentID, nil, token)
		assert.Equal(t, http.StatusOK, rr.Code)

		otherToken := registerAndLogin(t, router, "dirstranger")
		rr = doJSONWithAuth(router, "GET", "/api/agents/"+agentID, nil, otherToken)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = doJSONWithAuth(router, "GET", "/api/agents/no-such-agent", nil, token)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("requires token", func(t *testing.T) {
		rr := doJSON(router, "GET", "/api/agents", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("key resolves until revoked", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/agents/commands/poll", struct{}{}, apiKey)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONWithAuth(router, "DELETE", "/api/agents/"+agentID+"/keys", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)

		var revoke dto.RevokeKeysResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &revoke))
		assert.GreaterOrEqual(t, revoke.Revoked, int64(1))

		rr = doJSONWithAuth(router, "POST", "/api/agents/commands/poll", struct{}{}, apiKey)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		// Idempotent: nothing left to revoke
		rr = doJSONWithAuth(router, "DELETE", "/api/agents/"+agentID+"/keys", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &revoke))
		assert.Equal(t, int64(0), revoke.Revoked)
	})

	t.Run("revoke scoped to owner", func(t *testing.T) {
		strangerToken := registerAndLogin(t, router, "dirstranger2")
		rr := doJSONWithAuth(router, "DELETE", "/api/agents/"+agentID+"/keys", nil, strangerToken)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("agent logout revokes own keys", func(t *testing.T) {
		_, key := enrollAgent(t, router, token, "dir-logout-rover")

		rr := doJSONWithAuth(router, "POST", "/api/agents/logout", struct{}{}, key)
		require.Equal(t, http.StatusOK, rr.Code)

		var revoke dto.RevokeKeysResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &revoke))
		assert.GreaterOrEqual(t, revoke.Revoked, int64(1))

		rr = doJSONWithAuth(router, "POST", "/api/agents/commands/poll", struct{}{}, key)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
