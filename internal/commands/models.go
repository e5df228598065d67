package commands

import (
	"encoding/json"
	"time"
)

// Command statuses. The machine is monotonic:
// pending -> in_progress -> acked | expired. Expiry is persisted as a
// terminal status during the poll sweep (unlike device-flow expiry, which
// is derived at read time).
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusAcked      = "acked"
	StatusExpired    = "expired"
)

// Command is the full projection used by operator views.
type Command struct {
	ID          string
	AgentID     string
	Type        string
	Payload     json.RawMessage
	Status      string
	Result      json.RawMessage
	Output      string
	CreatedAt   time.Time
	DeliveredAt *time.Time
	AckedAt     *time.Time
}

// Delivery is the minimal wire shape handed to the agent by a poll.
// TraceID always equals CommandID.
type Delivery struct {
	CommandID string
	TraceID   string
	Type      string
	Payload   json.RawMessage
}
