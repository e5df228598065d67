package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/faros-robotics/faros-server/internal/db/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrCommandNotFound      = errors.New("command not found")
	ErrCommandAlreadyAcked  = errors.New("command already acknowledged")
	ErrCommandNotInProgress = errors.New("command is not in progress")
	ErrEmptyCommandType     = errors.New("command type is required")
)

// DefaultTTL is the delivery window: a command not polled within it is
// expired instead of delivered.
const DefaultTTL = 30 * time.Second

type Config struct {
	TTL time.Duration
}

// Service is the command dispatch queue. It owns AgentCommand rows and
// trusts agent-id scoping; operator ownership is enforced by the caller
// through the agent directory.
type Service struct {
	pool    *pgxpool.Pool
	queries *store.Queries
	ttl     time.Duration
}

func NewService(pool *pgxpool.Pool, config Config) *Service {
	ttl := config.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Service{
		pool:    pool,
		queries: store.New(pool),
		ttl:     ttl,
	}
}

// Enqueue inserts a pending command for the agent.
func (s *Service) Enqueue(ctx context.Context, agentID, commandType string, payload json.RawMessage) (Command, error) {
	commandType = strings.TrimSpace(commandType)
	if commandType == "" {
		return Command{}, ErrEmptyCommandType
	}

	var payloadText *string
	if payload != nil {
		text := string(payload)
		payloadText = &text
	}

	var row store.AgentCommand
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		row, err = s.queries.WithTx(tx).CreateCommand(ctx, store.CreateCommandParams{
			ID:      uuid.NewString(),
			AgentID: agentID,
			Type:    commandType,
			Payload: payloadText,
		})
		return err
	})
	if err != nil {
		return Command{}, fmt.Errorf("failed to enqueue command: %w", err)
	}

	slog.Info("Command enqueued", "command_id", row.ID, "agent_id", agentID, "type", commandType)
	return commandFromRow(row), nil
}

// PollPending is the delivery sweep, one transaction: pending commands are
// partitioned by age against the TTL; stale ones are expired and withheld,
// fresh ones are marked in_progress and returned oldest first. Each
// command is delivered by at most one poll, ever — a concurrent sweep
// either loses the row locks or finds nothing still pending.
func (s *Service) PollPending(ctx context.Context, agentID string) ([]Delivery, error) {
	now := time.Now().UTC()

	var fresh []store.AgentCommand
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		q := s.queries.WithTx(tx)

		pending, err := q.ListPendingCommandsForUpdate(ctx, agentID)
		if err != nil {
			return fmt.Errorf("failed to list pending commands: %w", err)
		}

		var expiredIDs, freshIDs []string
		fresh = fresh[:0]
		for _, c := range pending {
			if now.Sub(c.CreatedAt) > s.ttl {
				expiredIDs = append(expiredIDs, c.ID)
			} else {
				freshIDs = append(freshIDs, c.ID)
				fresh = append(fresh, c)
			}
		}

		if len(expiredIDs) > 0 {
			if err := q.MarkCommandsExpired(ctx, expiredIDs); err != nil {
				return fmt.Errorf("failed to expire commands: %w", err)
			}
			slog.Info("Commands expired before delivery", "agent_id", agentID, "count", len(expiredIDs))
		}
		if len(freshIDs) > 0 {
			if err := q.MarkCommandsInProgress(ctx, freshIDs); err != nil {
				return fmt.Errorf("failed to mark commands in progress: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	deliveries := make([]Delivery, len(fresh))
	for i, c := range fresh {
		deliveries[i] = Delivery{
			CommandID: c.ID,
			TraceID:   c.ID,
			Type:      c.Type,
			Payload:   rawPayload(c.Payload),
		}
	}
	return deliveries, nil
}

// Ack stores the terminal result for a delivered command.
func (s *Service) Ack(ctx context.Context, agentID, commandID string, result json.RawMessage) (Command, error) {
	resultText := "null"
	if result != nil {
		resultText = string(result)
	}

	var row store.AgentCommand
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		q := s.queries.WithTx(tx)

		var err error
		row, err = s.lockAgentCommand(ctx, q, agentID, commandID)
		if err != nil {
			return err
		}
		if row.Status == StatusAcked || row.Status == StatusExpired {
			return ErrCommandAlreadyAcked
		}

		return q.AckCommand(ctx, store.AckCommandParams{ID: commandID, Result: resultText})
	})
	if err != nil {
		return Command{}, err
	}

	slog.Info("Command acknowledged", "command_id", commandID, "agent_id", agentID)

	command := commandFromRow(row)
	command.Status = StatusAcked
	command.Result = json.RawMessage(resultText)
	return command, nil
}

// AppendOutput concatenates text onto the output buffer of an in-progress
// command. Terminal and undelivered commands both reject the append.
func (s *Service) AppendOutput(ctx context.Context, agentID, commandID, text string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		q := s.queries.WithTx(tx)

		row, err := s.lockAgentCommand(ctx, q, agentID, commandID)
		if err != nil {
			return err
		}
		if row.Status != StatusInProgress {
			return ErrCommandNotInProgress
		}

		return q.AppendCommandOutput(ctx, commandID, text)
	})
}

// ListByAgent returns the full operator projection in creation order,
// optionally filtered by exact status.
func (s *Service) ListByAgent(ctx context.Context, agentID, status string) ([]Command, error) {
	var statusFilter *string
	if status != "" {
		statusFilter = &status
	}

	rows, err := s.queries.ListCommandsByAgent(ctx, store.ListCommandsByAgentParams{
		AgentID: agentID,
		Status:  statusFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}

	result := make([]Command, len(rows))
	for i, row := range rows {
		result[i] = commandFromRow(row)
	}
	return result, nil
}

// Get returns a single command scoped to the agent.
func (s *Service) Get(ctx context.Context, agentID, commandID string) (Command, error) {
	row, err := s.queries.GetCommandByID(ctx, commandID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Command{}, ErrCommandNotFound
		}
		return Command{}, fmt.Errorf("failed to look up command: %w", err)
	}
	if row.AgentID != agentID {
		return Command{}, ErrCommandNotFound
	}
	return commandFromRow(row), nil
}

// lockAgentCommand loads and row-locks a command, hiding other agents'
// commands behind NotFound.
func (s *Service) lockAgentCommand(ctx context.Context, q *store.Queries, agentID, commandID string) (store.AgentCommand, error) {
	row, err := q.GetCommandByIDForUpdate(ctx, commandID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.AgentCommand{}, ErrCommandNotFound
		}
		return store.AgentCommand{}, fmt.Errorf("failed to look up command: %w", err)
	}
	if row.AgentID != agentID {
		return store.AgentCommand{}, ErrCommandNotFound
	}
	return row, nil
}

func rawPayload(payload *string) json.RawMessage {
	if payload == nil {
		return nil
	}
	return json.RawMessage(*payload)
}

func commandFromRow(row store.AgentCommand) Command {
	command := Command{
		ID:          row.ID,
		AgentID:     row.AgentID,
		Type:        row.Type,
		Payload:     rawPayload(row.Payload),
		Status:      row.Status,
		Result:      rawPayload(row.Result),
		CreatedAt:   row.CreatedAt,
		DeliveredAt: row.DeliveredAt,
		AckedAt:     row.AckedAt,
	}
	if row.Output != nil {
		command.Output = *row.Output
	}
	return command
}
