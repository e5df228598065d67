package store

import (
	"context"
	"time"
)

type AgentCommand struct {
	ID          string
	AgentID     string
	Type        string
	Payload     *string
	Status      string
	Result      *string
	Output      *string
	CreatedAt   time.Time
	DeliveredAt *time.Time
	AckedAt     *time.Time
}

const commandColumns = `id, agent_id, type, payload, status, result, output,
	created_at, delivered_at, acked_at`

func scanCommand(row interface{ Scan(dest ...any) error }) (AgentCommand, error) {
	var c AgentCommand
	err := row.Scan(
		&c.ID, &c.AgentID, &c.Type, &c.Payload, &c.Status, &c.Result, &c.Output,
		&c.CreatedAt, &c.DeliveredAt, &c.AckedAt,
	)
	return c, err
}

type CreateCommandParams struct {
	ID      string
	AgentID string
	Type    string
	Payload *string
}

func (q *Queries) CreateCommand(ctx context.Context, arg CreateCommandParams) (AgentCommand, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO agent_commands (id, agent_id, type, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING `+commandColumns,
		arg.ID, arg.AgentID, arg.Type, arg.Payload,
	)
	return scanCommand(row)
}

func (q *Queries) GetCommandByID(ctx context.Context, id string) (AgentCommand, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+commandColumns+`
		FROM agent_commands
		WHERE id = $1`,
		id,
	)
	return scanCommand(row)
}

// GetCommandByIDForUpdate row-locks the command so ack and output appends
// serialize against the poll sweep.
func (q *Queries) GetCommandByIDForUpdate(ctx context.Context, id string) (AgentCommand, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+commandColumns+`
		FROM agent_commands
		WHERE id = $1
		FOR UPDATE`,
		id,
	)
	return scanCommand(row)
}

// ListPendingCommandsForUpdate returns the agent's pending commands oldest
// first, row-locked. The locks are the serialization point between
// concurrent pollers: whichever transaction commits first claims the batch.
func (q *Queries) ListPendingCommandsForUpdate(ctx context.Context, agentID string) ([]AgentCommand, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+commandColumns+`
		FROM agent_commands
		WHERE agent_id = $1 AND status = 'pending'
		ORDER BY created_at
		FOR UPDATE`,
		agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []AgentCommand
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, c)
	}
	return commands, rows.Err()
}

// MarkCommandsInProgress batch-delivers commands. The status predicate
// makes a losing concurrent sweep a no-op at the row level.
func (q *Queries) MarkCommandsInProgress(ctx context.Context, ids []string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE agent_commands
		SET status = 'in_progress', delivered_at = now()
		WHERE id = ANY($1) AND status = 'pending'`,
		ids,
	)
	return err
}

// MarkCommandsExpired batch-expires commands that outlived the delivery
// window without being polled. Expiry is persisted as a terminal status,
// unlike device-flow expiry which stays derived.
func (q *Queries) MarkCommandsExpired(ctx context.Context, ids []string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE agent_commands
		SET status = 'expired', delivered_at = now()
		WHERE id = ANY($1) AND status = 'pending'`,
		ids,
	)
	return err
}

type AckCommandParams struct {
	ID     string
	Result string
}

func (q *Queries) AckCommand(ctx context.Context, arg AckCommandParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE agent_commands
		SET status = 'acked', result = $2, acked_at = now()
		WHERE id = $1`,
		arg.ID, arg.Result,
	)
	return err
}

func (q *Queries) AppendCommandOutput(ctx context.Context, id string, text string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE agent_commands
		SET output = coalesce(output, '') || $2
		WHERE id = $1`,
		id, text,
	)
	return err
}

type ListCommandsByAgentParams struct {
	AgentID string
	Status  *string
}

func (q *Queries) ListCommandsByAgent(ctx context.Context, arg ListCommandsByAgentParams) ([]AgentCommand, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+commandColumns+`
		FROM agent_commands
		WHERE agent_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at`,
		arg.AgentID, arg.Status,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []AgentCommand
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, c)
	}
	return commands, rows.Err()
}
