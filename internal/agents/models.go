package agents

import (
	"time"
)

// Agent is one enrolled device identity. The unique name lets a repeated
// enrollment of the same physical device reuse the same row.
type Agent struct {
	ID         string
	Name       string
	RobotType  string
	OwnerID    string
	Status     string
	LastHealth string
	CreatedAt  time.Time
	LastSeenAt *time.Time
}
