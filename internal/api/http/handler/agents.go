package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/faros-robotics/faros-server/internal/agents"
	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/gin-gonic/gin"
)

// Directory is the agent directory surface the operator endpoints need.
type Directory interface {
	ListByOwner(ctx context.Context, ownerID string) ([]agents.Agent, error)
	GetOwnedAgent(ctx context.Context, agentID, ownerID string) (agents.Agent, error)
	RevokeAllKeys(ctx context.Context, agentID, requesterOwnerID string) (int64, error)
}

type AgentsHandler struct {
	directory Directory
}

func NewAgentsHandler(directory Directory) *AgentsHandler {
	return &AgentsHandler{directory: directory}
}

func (h *AgentsHandler) List(ctx *gin.Context) {
	owned, err := h.directory.ListByOwner(ctx.Request.Context(), ctx.GetString("user_id"))
	if err != nil {
		slog.Error("Failed to list agents", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list agents"})
		return
	}

	resp := dto.ListAgentsResponse{Agents: make([]dto.AgentResponse, len(owned))}
	for i, agent := range owned {
		resp.Agents[i] = agentResponse(agent)
	}
	ctx.JSON(http.StatusOK, resp)
}

func (h *AgentsHandler) Get(ctx *gin.Context) {
	agent, err := h.directory.GetOwnedAgent(ctx.Request.Context(), ctx.Param("id"), ctx.GetString("user_id"))
	if err != nil {
		writeDirectoryError(ctx, err, "load agent")
		return
	}
	ctx.JSON(http.StatusOK, agentResponse(agent))
}

// RevokeKeys revokes every active key for an owned agent. Revoking an
// agent with no active keys is not an error.
func (h *AgentsHandler) RevokeKeys(ctx *gin.Context) {
	revoked, err := h.directory.RevokeAllKeys(ctx.Request.Context(), ctx.Param("id"), ctx.GetString("user_id"))
	if err != nil {
		writeDirectoryError(ctx, err, "revoke keys")
		return
	}
	ctx.JSON(http.StatusOK, dto.RevokeKeysResponse{Revoked: revoked})
}

func writeDirectoryError(ctx *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, agents.ErrAgentNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
	case errors.Is(err, agents.ErrNotOwner):
		ctx.JSON(http.StatusForbidden, gin.H{"error": "not the agent owner"})
	default:
		slog.Error("Failed to "+action, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action})
	}
}

func agentResponse(agent agents.Agent) dto.AgentResponse {
	return dto.AgentResponse{
		ID:         agent.ID,
		Name:       agent.Name,
		RobotType:  agent.RobotType,
		OwnerID:    agent.OwnerID,
		Status:     agent.Status,
		CreatedAt:  agent.CreatedAt,
		LastSeenAt: agent.LastSeenAt,
	}
}
