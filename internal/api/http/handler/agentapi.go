package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/faros-robotics/faros-server/internal/agents"
	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/faros-robotics/faros-server/internal/commands"
	"github.com/faros-robotics/faros-server/internal/telemetry"
	"github.com/gin-gonic/gin"
)

// AgentAPIHandler serves the agent-facing surface. Every endpoint runs
// behind AgentAuth, which puts the resolved agent on the context; the
// queue and sinks are scoped to that agent and nothing else.
type AgentAPIHandler struct {
	queue      CommandQueue
	directory  Directory
	heartbeats telemetry.HeartbeatSink
	anomalies  telemetry.AnomalySink
}

func NewAgentAPIHandler(queue CommandQueue, directory Directory, heartbeats telemetry.HeartbeatSink, anomalies telemetry.AnomalySink) *AgentAPIHandler {
	return &AgentAPIHandler{
		queue:      queue,
		directory:  directory,
		heartbeats: heartbeats,
		anomalies:  anomalies,
	}
}

func contextAgent(ctx *gin.Context) agents.Agent {
	return ctx.MustGet("agent").(agents.Agent)
}

func (h *AgentAPIHandler) PollCommands(ctx *gin.Context) {
	agent := contextAgent(ctx)

	deliveries, err := h.queue.PollPending(ctx.Request.Context(), agent.ID)
	if err != nil {
		slog.Error("Failed to poll commands", "error", err, "agent_id", agent.ID)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to poll commands"})
		return
	}

	resp := dto.PollCommandsResponse{Commands: make([]dto.CommandDelivery, len(deliveries))}
	for i, d := range deliveries {
		resp.Commands[i] = dto.CommandDelivery{
			CommandID: d.CommandID,
			TraceID:   d.TraceID,
			Type:      d.Type,
			Payload:   d.Payload,
		}
	}
	ctx.JSON(http.StatusOK, resp)
}

func (h *AgentAPIHandler) AckCommand(ctx *gin.Context) {
	agent := contextAgent(ctx)

	var req dto.AckCommandRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	command, err := h.queue.Ack(ctx.Request.Context(), agent.ID, ctx.Param("command_id"), req.Result)
	if err != nil {
		writeQueueError(ctx, err, "acknowledge command")
		return
	}

	ctx.JSON(http.StatusOK, commandResponse(command))
}

func (h *AgentAPIHandler) AppendOutput(ctx *gin.Context) {
	agent := contextAgent(ctx)

	var req dto.AppendOutputRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.queue.AppendOutput(ctx.Request.Context(), agent.ID, ctx.Param("command_id"), req.Text); err != nil {
		writeQueueError(ctx, err, "append output")
		return
	}

	ctx.JSON(http.StatusOK, dto.StatusResponse{Status: "ok"})
}

func (h *AgentAPIHandler) Heartbeat(ctx *gin.Context) {
	agent := contextAgent(ctx)

	var req dto.HeartbeatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.heartbeats.RecordHeartbeat(ctx.Request.Context(), agent.ID, req.Health); err != nil {
		slog.Error("Failed to record heartbeat", "error", err, "agent_id", agent.ID)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record heartbeat"})
		return
	}

	ctx.JSON(http.StatusOK, dto.StatusResponse{Status: "ok"})
}

func (h *AgentAPIHandler) Anomalies(ctx *gin.Context) {
	agent := contextAgent(ctx)

	var events []telemetry.AnomalyEvent
	if err := ctx.ShouldBindJSON(&events); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stored, err := h.anomalies.RecordAnomalies(ctx.Request.Context(), agent.ID, events)
	if err != nil {
		slog.Error("Failed to record anomalies", "error", err, "agent_id", agent.ID)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record anomalies"})
		return
	}

	ctx.JSON(http.StatusOK, dto.AnomaliesResponse{Stored: stored})
}

// Logout lets an agent revoke its own credentials; the key used to make
// the call stops working immediately.
func (h *AgentAPIHandler) Logout(ctx *gin.Context) {
	agent := contextAgent(ctx)

	revoked, err := h.directory.RevokeAllKeys(ctx.Request.Context(), agent.ID, agent.OwnerID)
	if err != nil {
		slog.Error("Failed to log out agent", "error", err, "agent_id", agent.ID)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to log out"})
		return
	}

	ctx.JSON(http.StatusOK, dto.RevokeKeysResponse{Revoked: revoked})
}

func writeQueueError(ctx *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, commands.ErrCommandNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
	case errors.Is(err, commands.ErrCommandAlreadyAcked):
		ctx.JSON(http.StatusConflict, gin.H{"error": "command already acknowledged"})
	case errors.Is(err, commands.ErrCommandNotInProgress):
		ctx.JSON(http.StatusConflict, gin.H{"error": "command is not in progress"})
	default:
		slog.Error("Failed to "+action, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action})
	}
}
