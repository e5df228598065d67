package store

import (
	"context"
	"time"
)

type Agent struct {
	ID         string
	Name       string
	RobotType  string
	OwnerID    string
	Status     string
	LastHealth *string
	CreatedAt  time.Time
	LastSeenAt *time.Time
}

const agentColumns = `id, name, robot_type, owner_id, status, last_health, created_at, last_seen_at`

func scanAgent(row interface{ Scan(dest ...any) error }) (Agent, error) {
	var a Agent
	err := row.Scan(
		&a.ID, &a.Name, &a.RobotType, &a.OwnerID, &a.Status,
		&a.LastHealth, &a.CreatedAt, &a.LastSeenAt,
	)
	return a, err
}

type CreateAgentParams struct {
	ID        string
	Name      string
	RobotType string
	OwnerID   string
}

// CreateAgent inserts the agent. A name collision yields no row
// (pgx.ErrNoRows) instead of a unique violation, so a caller inside a
// transaction can recover by selecting the winner.
func (q *Queries) CreateAgent(ctx context.Context, arg CreateAgentParams) (Agent, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO agents (id, name, robot_type, owner_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
		RETURNING `+agentColumns,
		arg.ID, arg.Name, arg.RobotType, arg.OwnerID,
	)
	return scanAgent(row)
}

func (q *Queries) GetAgentByID(ctx context.Context, id string) (Agent, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+agentColumns+`
		FROM agents
		WHERE id = $1`,
		id,
	)
	return scanAgent(row)
}

func (q *Queries) GetAgentByName(ctx context.Context, name string) (Agent, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+agentColumns+`
		FROM agents
		WHERE name = $1`,
		name,
	)
	return scanAgent(row)
}

func (q *Queries) ListAgentsByOwner(ctx context.Context, ownerID string) ([]Agent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+agentColumns+`
		FROM agents
		WHERE owner_id = $1
		ORDER BY created_at`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (q *Queries) TouchAgentLastSeen(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE agents
		SET last_seen_at = now()
		WHERE id = $1`,
		id,
	)
	return err
}

// UpdateAgentHealth overwrites last_health with the latest heartbeat
// payload (latest-wins) and touches last_seen_at.
func (q *Queries) UpdateAgentHealth(ctx context.Context, id string, health string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE agents
		SET last_health = $2, last_seen_at = now()
		WHERE id = $1`,
		id, health,
	)
	return err
}
