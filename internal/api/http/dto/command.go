package dto

import (
	"encoding/json"
	"time"
)

type EnqueueCommandRequest struct {
	Type    string          `json:"type" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

type CommandResponse struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agent_id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Output      string          `json:"output,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
	AckedAt     *time.Time      `json:"acked_at,omitempty"`
}

type ListCommandsResponse struct {
	Commands []CommandResponse `json:"commands"`
}

// CommandDelivery is the minimal poll wire shape; trace_id always equals
// command_id.
type CommandDelivery struct {
	CommandID string          `json:"command_id"`
	TraceID   string          `json:"trace_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type PollCommandsResponse struct {
	Commands []CommandDelivery `json:"commands"`
}

type AckCommandRequest struct {
	Result json.RawMessage `json:"result"`
}

type AppendOutputRequest struct {
	Text string `json:"text" binding:"required"`
}
