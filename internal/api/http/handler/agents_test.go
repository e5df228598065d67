package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/faros-robotics/faros-server/internal/agents"
	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAgentsRouter(h *AgentsHandler) *gin.Engine {
	r := gin.New()
	r.GET("/api/agents", asUser("user-1"), h.List)
	r.GET("/api/agents/:id", asUser("user-1"), h.Get)
	r.DELETE("/api/agents/:id/keys", asUser("user-1"), h.RevokeKeys)
	return r
}

func TestListAgents(t *testing.T) {
	directory := &stubDirectory{agents: []agents.Agent{
		{ID: "agent-1", Name: "lab-arm", RobotType: "arm", OwnerID: "user-1", CreatedAt: time.Now().UTC()},
		{ID: "agent-2", Name: "lab-rover", RobotType: "rover", OwnerID: "user-1", CreatedAt: time.Now().UTC()},
	}}
	h := NewAgentsHandler(directory)
	r := setupAgentsRouter(h)

	req, _ := http.NewRequest("GET", "/api/agents", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", directory.gotOwnerID)

	var resp dto.ListAgentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Agents, 2)
	assert.Equal(t, "lab-arm", resp.Agents[0].Name)
}

func TestRevokeKeys(t *testing.T) {
	directory := &stubDirectory{revoked: 2}
	h := NewAgentsHandler(directory)
	r := setupAgentsRouter(h)

	req, _ := http.NewRequest("DELETE", "/api/agents/agent-1/keys", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "agent-1", directory.gotAgentID)

	var resp dto.RevokeKeysResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Revoked)
}

func TestRevokeKeysNotOwner(t *testing.T) {
	directory := &stubDirectory{revokeErr: agents.ErrNotOwner}
	h := NewAgentsHandler(directory)
	r := setupAgentsRouter(h)

	req, _ := http.NewRequest("DELETE", "/api/agents/agent-1/keys", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
