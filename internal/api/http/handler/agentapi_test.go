package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/faros-robotics/faros-server/internal/agents"
	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/faros-robotics/faros-server/internal/commands"
	"github.com/faros-robotics/faros-server/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHeartbeats struct {
	err        error
	gotAgentID string
	gotPayload json.RawMessage
}

func (s *stubHeartbeats) RecordHeartbeat(_ context.Context, agentID string, payload json.RawMessage) error {
	s.gotAgentID = agentID
	s.gotPayload = payload
	return s.err
}

type stubAnomalies struct {
	stored     int
	err        error
	gotAgentID string
	gotEvents  []telemetry.AnomalyEvent
}

func (s *stubAnomalies) RecordAnomalies(_ context.Context, agentID string, events []telemetry.AnomalyEvent) (int, error) {
	s.gotAgentID = agentID
	s.gotEvents = events
	return s.stored, s.err
}

func asAgent(agent agents.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("agent_id", agent.ID)
		c.Set("agent", agent)
		c.Next()
	}
}

func setupAgentAPIRouter(h *AgentAPIHandler) *gin.Engine {
	agent := agents.Agent{ID: "agent-1", Name: "lab-arm", OwnerID: "user-1"}
	r := gin.New()
	r.POST("/api/agents/commands/poll", asAgent(agent), h.PollCommands)
	r.POST("/api/agents/commands/:command_id/ack", asAgent(agent), h.AckCommand)
	r.POST("/api/agents/commands/:command_id/output", asAgent(agent), h.AppendOutput)
	r.POST("/api/agents/heartbeat", asAgent(agent), h.Heartbeat)
	r.POST("/api/agents/anomalies", asAgent(agent), h.Anomalies)
	r.POST("/api/agents/logout", asAgent(agent), h.Logout)
	return r
}

func TestPollCommands(t *testing.T) {
	queue := &stubQueue{deliveries: []commands.Delivery{
		{CommandID: "cmd-1", TraceID: "cmd-1", Type: "restart", Payload: json.RawMessage(`{"grace":true}`)},
		{CommandID: "cmd-2", TraceID: "cmd-2", Type: "status"},
	}}
	h := NewAgentAPIHandler(queue, &stubDirectory{}, &stubHeartbeats{}, &stubAnomalies{})
	r := setupAgentAPIRouter(h)

	w := postJSON(t, r, "/api/agents/commands/poll", struct{}{})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "agent-1", queue.gotAgentID)

	var resp dto.PollCommandsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Commands, 2)
	assert.Equal(t, "cmd-1", resp.Commands[0].CommandID)
	assert.Equal(t, resp.Commands[0].CommandID, resp.Commands[0].TraceID)
}

func TestPollCommandsEmpty(t *testing.T) {
	h := NewAgentAPIHandler(&stubQueue{}, &stubDirectory{}, &stubHeartbeats{}, &stubAnomalies{})
	r := setupAgentAPIRouter(h)

	w := postJSON(t, r, "/api/agents/commands/poll", struct{}{})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.PollCommandsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Commands)
}

func TestAckCommand(t *testing.T) {
	queue := &stubQueue{command: commands.Command{
		ID:      "cmd-1",
		AgentID: "agent-1",
		Type:    "restart",
		Status:  commands.StatusAcked,
		Result:  json.RawMessage(`{"ok":true}`),
	}}
	h := NewAgentAPIHandler(queue, &stubDirectory{}, &stubHeartbeats{}, &stubAnomalies{})
	r := setupAgentAPIRouter(h)

	w := postJSON(t, r, "/api/agents/commands/cmd-1/ack", dto.AckCommandRequest{
		Result: json.RawMessage(`{"ok":true}`),
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cmd-1", queue.gotCommandID)
	assert.JSONEq(t, `{"ok":true}`, string(queue.gotResult))
}

func TestAckCommandAlreadyAcked(t *testing.T) {
	queue := &stubQueue{err: commands.ErrCommandAlreadyAcked}
	h := NewAgentAPIHandler(queue, &stubDirectory{}, &stubHeartbeats{}, &stubAnomalies{})
	r := setupAgentAPIRouter(h)

	w := postJSON(t, r, "/api/agents/commands/cmd-1/ack", dto.AckCommandRequest{})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAppendOutput(t *testing.T) {
	queue := &stubQueue{}
	h := NewAgentAPIHandler(queue, &stubDirectory{}, &stubHeartbeats{}, &stubAnomalies{})
	r := setupAgentAPIRouter(h)

	w := postJSON(t, r, "/api/agents/commands/cmd-1/output", dto.AppendOutputRequest{Text: "line 1\n"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cmd-1", queue.gotCommandID)
	assert.Equal(t, "line 1\n", queue.gotText)
}

func TestAppendOutputNotInProgress(t *testing.T) {
	queue := &stubQueue{err: commands.ErrCommandNotInProgress}
	h := NewAgentAPIHandler(queue, &stubDirectory{}, &stubHeartbeats{}, &stubAnomalies{})
	r := setupAgentAPIRouter(h)

	w := postJSON(t, r, "/api/agents/commands/cmd-1/output", dto.AppendOutputRequest{Text: "late"})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHeartbeat(t *testing.T) {
	heartbeats := &stubHeartbeats{}
	h := NewAgentAPIHandler(&stubQueue{}, &stubDirectory{}, heartbeats, &stubAnomalies{})
	r := setupAgentAPIRouter(h)

	w := postJSON(t, r, "/api/agents/heartbeat", dto.HeartbeatRequest{
		Health: json.RawMessage(`{"battery":0.92}`),
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "agent-1", heartbeats.gotAgentID)
	assert.JSONEq(t, `{"battery":0.92}`, string(heartbeats.gotPayload))
}

func TestAnomalies(t *testing.T) {
	anomalies := &stubAnomalies{stored: 2}
	h := NewAgentAPIHandler(&stubQueue{}, &stubDirectory{}, &stubHeartbeats{}, anomalies)
	r := setupAgentAPIRouter(h)

	events := []telemetry.AnomalyEvent{
		{TraceID: "t-1", Group: "drive", RawScore: 0.91, DriftTriggered: true},
		{TraceID: "t-2", Group: "drive", RawScore: 0.11},
	}
	w := postJSON(t, r, "/api/agents/anomalies", events)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, anomalies.gotEvents, 2)

	var resp dto.AnomaliesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Stored)
}

func TestAgentLogout(t *testing.T) {
	directory := &stubDirectory{revoked: 1}
	h := NewAgentAPIHandler(&stubQueue{}, directory, &stubHeartbeats{}, &stubAnomalies{})
	r := setupAgentAPIRouter(h)

	w := postJSON(t, r, "/api/agents/logout", struct{}{})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "agent-1", directory.gotAgentID)
	assert.Equal(t, "user-1", directory.gotOwnerID)

	var resp dto.RevokeKeysResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Revoked)
}
