package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/faros-robotics/faros-server/internal/credentials"
	"github.com/faros-robotics/faros-server/internal/db/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrNotOwner      = errors.New("not the agent owner")
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// Service is the agent directory. It is the only writer of Agent and
// ApiKey rows.
type Service struct {
	pool    *pgxpool.Pool
	queries *store.Queries
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{
		pool:    pool,
		queries: store.New(pool),
	}
}

// CreateOrReuseAgent inserts an agent, or returns the existing row
// unchanged when the name is already taken. It runs on the caller's unit
// of work so approval stays atomic.
func (s *Service) CreateOrReuseAgent(ctx context.Context, q *store.Queries, name, robotType, ownerID string) (Agent, error) {
	existing, err := q.GetAgentByName(ctx, name)
	if err == nil {
		return agentFromRow(existing), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, fmt.Errorf("failed to find agent: %w", err)
	}

	created, err := q.CreateAgent(ctx, store.CreateAgentParams{
		ID:        uuid.NewString(),
		Name:      name,
		RobotType: robotType,
		OwnerID:   ownerID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost a create race on the unique name. ON CONFLICT DO
			// NOTHING keeps the transaction healthy, so the winner can
			// be selected on the same handle.
			existing, err = q.GetAgentByName(ctx, name)
			if err != nil {
				return Agent{}, fmt.Errorf("failed to find agent: %w", err)
			}
			return agentFromRow(existing), nil
		}
		return Agent{}, fmt.Errorf("failed to create agent: %w", err)
	}

	slog.Info("Agent created", "agent_id", created.ID, "name", name, "owner_id", ownerID)
	return agentFromRow(created), nil
}

// IssueKey mints a new API key for the agent on the caller's unit of work.
// Only the hash is persisted; the plaintext is returned exactly once.
func (s *Service) IssueKey(ctx context.Context, q *store.Queries, agentID string) (string, error) {
	plaintext, err := credentials.GenerateAPIKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}

	if err := q.CreateApiKey(ctx, store.CreateApiKeyParams{
		KeyHash: credentials.HashKey(plaintext),
		AgentID: agentID,
	}); err != nil {
		return "", fmt.Errorf("failed to store API key: %w", err)
	}

	return plaintext, nil
}

// ResolveKey resolves a plaintext API key to its agent, touching the
// agent's last_seen_at and the key's last_used. A key whose agent row is
// missing is an error, not silently tolerated.
func (s *Service) ResolveKey(ctx context.Context, plaintext string) (Agent, error) {
	keyHash := credentials.HashKey(plaintext)

	var agent Agent
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		q := s.queries.WithTx(tx)

		key, err := q.GetApiKeyByHash(ctx, keyHash)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInvalidAPIKey
			}
			return fmt.Errorf("failed to look up API key: %w", err)
		}

		row, err := q.GetAgentByID(ctx, key.AgentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInvalidAPIKey
			}
			return fmt.Errorf("failed to look up agent: %w", err)
		}

		if err := q.TouchAgentLastSeen(ctx, row.ID); err != nil {
			return fmt.Errorf("failed to update last seen: %w", err)
		}
		if err := q.TouchApiKeyLastUsed(ctx, keyHash); err != nil {
			return fmt.Errorf("failed to update key last used: %w", err)
		}

		agent = agentFromRow(row)
		return nil
	})
	if err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// RevokeAllKeys revokes every active key for the agent. Idempotent: a
// second call returns zero.
func (s *Service) RevokeAllKeys(ctx context.Context, agentID, requesterOwnerID string) (int64, error) {
	var revoked int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		q := s.queries.WithTx(tx)

		agent, err := q.GetAgentByID(ctx, agentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAgentNotFound
			}
			return fmt.Errorf("failed to look up agent: %w", err)
		}
		if agent.OwnerID != requesterOwnerID {
			return ErrNotOwner
		}

		revoked, err = q.RevokeApiKeysForAgent(ctx, agentID)
		if err != nil {
			return fmt.Errorf("failed to revoke keys: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.Info("API keys revoked", "agent_id", agentID, "count", revoked)
	return revoked, nil
}

// ListByOwner returns all agents owned by a user.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Agent, error) {
	rows, err := s.queries.ListAgentsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	agents := make([]Agent, len(rows))
	for i, row := range rows {
		agents[i] = agentFromRow(row)
	}
	return agents, nil
}

// GetOwnedAgent loads an agent and enforces ownership. The command
// handlers use it to scope operator access before touching the queue.
func (s *Service) GetOwnedAgent(ctx context.Context, agentID, ownerID string) (Agent, error) {
	row, err := s.queries.GetAgentByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, ErrAgentNotFound
		}
		return Agent{}, fmt.Errorf("failed to look up agent: %w", err)
	}
	if row.OwnerID != ownerID {
		return Agent{}, ErrNotOwner
	}
	return agentFromRow(row), nil
}

// RecordHeartbeat stores the latest health payload, latest-wins.
func (s *Service) RecordHeartbeat(ctx context.Context, agentID string, payload json.RawMessage) error {
	health := "{}"
	if len(payload) > 0 {
		health = string(payload)
	}
	if err := s.queries.UpdateAgentHealth(ctx, agentID, health); err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

func agentFromRow(row store.Agent) Agent {
	agent := Agent{
		ID:         row.ID,
		Name:       row.Name,
		RobotType:  row.RobotType,
		OwnerID:    row.OwnerID,
		Status:     row.Status,
		CreatedAt:  row.CreatedAt,
		LastSeenAt: row.LastSeenAt,
	}
	if row.LastHealth != nil {
		agent.LastHealth = *row.LastHealth
	}
	return agent
}
