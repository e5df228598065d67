package dto

import (
	"encoding/json"
	"time"
)

type AgentResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	RobotType  string     `json:"robot_type"`
	OwnerID    string     `json:"owner_id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

type ListAgentsResponse struct {
	Agents []AgentResponse `json:"agents"`
}

type RevokeKeysResponse struct {
	Revoked int64 `json:"revoked"`
}

type HeartbeatRequest struct {
	Health json.RawMessage `json:"health"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type AnomaliesResponse struct {
	Stored int `json:"stored"`
}
