package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/faros-robotics/faros-server/internal/commands"
	"github.com/gin-gonic/gin"
)

// CommandQueue is the dispatch queue surface the HTTP layer needs.
type CommandQueue interface {
	Enqueue(ctx context.Context, agentID, commandType string, payload json.RawMessage) (commands.Command, error)
	PollPending(ctx context.Context, agentID string) ([]commands.Delivery, error)
	Ack(ctx context.Context, agentID, commandID string, result json.RawMessage) (commands.Command, error)
	AppendOutput(ctx context.Context, agentID, commandID, text string) error
	ListByAgent(ctx context.Context, agentID, status string) ([]commands.Command, error)
	Get(ctx context.Context, agentID, commandID string) (commands.Command, error)
}

// CommandsHandler serves the operator side of the queue. Every endpoint
// resolves ownership through the directory before touching the queue.
type CommandsHandler struct {
	queue     CommandQueue
	directory Directory
}

func NewCommandsHandler(queue CommandQueue, directory Directory) *CommandsHandler {
	return &CommandsHandler{queue: queue, directory: directory}
}

func (h *CommandsHandler) Enqueue(ctx *gin.Context) {
	var req dto.EnqueueCommandRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent, err := h.directory.GetOwnedAgent(ctx.Request.Context(), ctx.Param("id"), ctx.GetString("user_id"))
	if err != nil {
		writeDirectoryError(ctx, err, "load agent")
		return
	}

	command, err := h.queue.Enqueue(ctx.Request.Context(), agent.ID, req.Type, req.Payload)
	if err != nil {
		if errors.Is(err, commands.ErrEmptyCommandType) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "command type is required"})
			return
		}
		slog.Error("Failed to enqueue command", "error", err, "agent_id", agent.ID)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue command"})
		return
	}

	ctx.JSON(http.StatusCreated, commandResponse(command))
}

func (h *CommandsHandler) List(ctx *gin.Context) {
	agent, err := h.directory.GetOwnedAgent(ctx.Request.Context(), ctx.Param("id"), ctx.GetString("user_id"))
	if err != nil {
		writeDirectoryError(ctx, err, "load agent")
		return
	}

	list, err := h.queue.ListByAgent(ctx.Request.Context(), agent.ID, ctx.Query("status"))
	if err != nil {
		slog.Error("Failed to list commands", "error", err, "agent_id", agent.ID)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list commands"})
		return
	}

	resp := dto.ListCommandsResponse{Commands: make([]dto.CommandResponse, len(list))}
	for i, command := range list {
		resp.Commands[i] = commandResponse(command)
	}
	ctx.JSON(http.StatusOK, resp)
}

func (h *CommandsHandler) Get(ctx *gin.Context) {
	agent, err := h.directory.GetOwnedAgent(ctx.Request.Context(), ctx.Param("id"), ctx.GetString("user_id"))
	if err != nil {
		writeDirectoryError(ctx, err, "load agent")
		return
	}

	command, err := h.queue.Get(ctx.Request.Context(), agent.ID, ctx.Param("command_id"))
	if err != nil {
		if errors.Is(err, commands.ErrCommandNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
			return
		}
		slog.Error("Failed to load command", "error", err, "agent_id", agent.ID)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load command"})
		return
	}

	ctx.JSON(http.StatusOK, commandResponse(command))
}

func commandResponse(command commands.Command) dto.CommandResponse {
	return dto.CommandResponse{
		ID:          command.ID,
		AgentID:     command.AgentID,
		Type:        command.Type,
		Payload:     command.Payload,
		Status:      command.Status,
		Result:      command.Result,
		Output:      command.Output,
		CreatedAt:   command.CreatedAt,
		DeliveredAt: command.DeliveredAt,
		AckedAt:     command.AckedAt,
	}
}
