package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/faros-robotics/faros-server/internal/agents"
	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/faros-robotics/faros-server/internal/commands"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDirectory struct {
	agents     []agents.Agent
	agent      agents.Agent
	err        error
	revoked    int64
	revokeErr  error
	gotAgentID string
	gotOwnerID string
}

func (s *stubDirectory) ListByOwner(_ context.Context, ownerID string) ([]agents.Agent, error) {
	s.gotOwnerID = ownerID
	return s.agents, s.err
}

func (s *stubDirectory) GetOwnedAgent(_ context.Context, agentID, ownerID string) (agents.Agent, error) {
	s.gotAgentID = agentID
	s.gotOwnerID = ownerID
	return s.agent, s.err
}

func (s *stubDirectory) RevokeAllKeys(_ context.Context, agentID, requesterOwnerID string) (int64, error) {
	s.gotAgentID = agentID
	s.gotOwnerID = requesterOwnerID
	return s.revoked, s.revokeErr
}

type stubQueue struct {
	command    commands.Command
	list       []commands.Command
	deliveries []commands.Delivery
	err        error

	gotAgentID   string
	gotType      string
	gotStatus    string
	gotCommandID string
	gotResult    json.RawMessage
	gotText      string
}

func (s *stubQueue) Enqueue(_ context.Context, agentID, commandType string, _ json.RawMessage) (commands.Command, error) {
	s.gotAgentID = agentID
	s.gotType = commandType
	return s.command, s.err
}

func (s *stubQueue) PollPending(_ context.Context, agentID string) ([]commands.Delivery, error) {
	s.gotAgentID = agentID
	return s.deliveries, s.err
}

func (s *stubQueue) Ack(_ context.Context, agentID, commandID string, result json.RawMessage) (commands.Command, error) {
	s.gotAgentID = agentID
	s.gotCommandID = commandID
	s.gotResult = result
	return s.command, s.err
}

func (s *stubQueue) AppendOutput(_ context.Context, agentID, commandID, text string) error {
	s.gotAgentID = agentID
	s.gotCommandID = commandID
	s.gotText = text
	return s.err
}

func (s *stubQueue) ListByAgent(_ context.Context, agentID, status string) ([]commands.Command, error) {
	s.gotAgentID = agentID
	s.gotStatus = status
	return s.list, s.err
}

func (s *stubQueue) Get(_ context.Context, agentID, commandID string) (commands.Command, error) {
	s.gotAgentID = agentID
	s.gotCommandID = commandID
	return s.command, s.err
}

func setupCommandsRouter(h *CommandsHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/agents/:id/commands", asUser("user-1"), h.Enqueue)
	r.GET("/api/agents/:id/commands", asUser("user-1"), h.List)
	r.GET("/api/agents/:id/commands/:command_id", asUser("user-1"), h.Get)
	return r
}

func TestEnqueueCommand(t *testing.T) {
	directory := &stubDirectory{agent: agents.Agent{ID: "agent-1", OwnerID: "user-1"}}
	queue := &stubQueue{command: commands.Command{
		ID:        "cmd-1",
		AgentID:   "agent-1",
		Type:      "restart",
		Status:    commands.StatusPending,
		CreatedAt: time.Now().UTC(),
	}}
	h := NewCommandsHandler(queue, directory)
	r := setupCommandsRouter(h)

	w := postJSON(t, r, "/api/agents/agent-1/commands", dto.EnqueueCommandRequest{
		Type:    "restart",
		Payload: json.RawMessage(`{"grace":true}`),
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "agent-1", queue.gotAgentID)
	assert.Equal(t, "restart", queue.gotType)
	assert.Equal(t, "user-1", directory.gotOwnerID)

	var resp dto.CommandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cmd-1", resp.ID)
	assert.Equal(t, "pending", resp.Status)
}

func TestEnqueueCommandNotOwner(t *testing.T) {
	directory := &stubDirectory{err: agents.ErrNotOwner}
	h := NewCommandsHandler(&stubQueue{}, directory)
	r := setupCommandsRouter(h)

	w := postJSON(t, r, "/api/agents/agent-1/commands", dto.EnqueueCommandRequest{Type: "restart"})

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEnqueueCommandUnknownAgent(t *testing.T) {
	directory := &stubDirectory{err: agents.ErrAgentNotFound}
	h := NewCommandsHandler(&stubQueue{}, directory)
	r := setupCommandsRouter(h)

	w := postJSON(t, r, "/api/agents/agent-1/commands", dto.EnqueueCommandRequest{Type: "restart"})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnqueueCommandMissingType(t *testing.T) {
	directory := &stubDirectory{agent: agents.Agent{ID: "agent-1", OwnerID: "user-1"}}
	h := NewCommandsHandler(&stubQueue{}, directory)
	r := setupCommandsRouter(h)

	w := postJSON(t, r, "/api/agents/agent-1/commands", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCommandsStatusFilter(t *testing.T) {
	directory := &stubDirectory{agent: agents.Agent{ID: "agent-1", OwnerID: "user-1"}}
	queue := &stubQueue{list: []commands.Command{
		{ID: "cmd-1", AgentID: "agent-1", Type: "restart", Status: commands.StatusAcked},
	}}
	h := NewCommandsHandler(queue, directory)
	r := setupCommandsRouter(h)

	req, _ := http.NewRequest("GET", "/api/agents/agent-1/commands?status=acked", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acked", queue.gotStatus)

	var resp dto.ListCommandsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Commands, 1)
	assert.Equal(t, "cmd-1", resp.Commands[0].ID)
}

func TestGetCommandNotFound(t *testing.T) {
	directory := &stubDirectory{agent: agents.Agent{ID: "agent-1", OwnerID: "user-1"}}
	queue := &stubQueue{err: commands.ErrCommandNotFound}
	h := NewCommandsHandler(queue, directory)
	r := setupCommandsRouter(h)

	req, _ := http.NewRequest("GET", "/api/agents/agent-1/commands/cmd-404", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
