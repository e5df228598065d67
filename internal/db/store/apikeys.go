package store

import (
	"context"
	"time"
)

type ApiKey struct {
	KeyHash   string
	AgentID   string
	Revoked   bool
	CreatedAt time.Time
	LastUsed  *time.Time
}

type CreateApiKeyParams struct {
	KeyHash string
	AgentID string
}

func (q *Queries) CreateApiKey(ctx context.Context, arg CreateApiKeyParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO api_keys (key_hash, agent_id)
		VALUES ($1, $2)`,
		arg.KeyHash, arg.AgentID,
	)
	return err
}

// GetApiKeyByHash resolves a key hash. Revoked keys are never returned.
func (q *Queries) GetApiKeyByHash(ctx context.Context, keyHash string) (ApiKey, error) {
	var k ApiKey
	err := q.db.QueryRow(ctx, `
		SELECT key_hash, agent_id, revoked, created_at, last_used
		FROM api_keys
		WHERE key_hash = $1 AND revoked = FALSE`,
		keyHash,
	).Scan(&k.KeyHash, &k.AgentID, &k.Revoked, &k.CreatedAt, &k.LastUsed)
	return k, err
}

func (q *Queries) TouchApiKeyLastUsed(ctx context.Context, keyHash string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE api_keys
		SET last_used = now()
		WHERE key_hash = $1`,
		keyHash,
	)
	return err
}

// RevokeApiKeysForAgent revokes every active key for the agent and returns
// the number revoked, zero on a repeat call.
func (q *Queries) RevokeApiKeysForAgent(ctx context.Context, agentID string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE api_keys
		SET revoked = TRUE
		WHERE agent_id = $1 AND revoked = FALSE`,
		agentID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
