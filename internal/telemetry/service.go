package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/faros-robotics/faros-server/internal/db/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service stores anomaly events in the database. It is the default
// AnomalySink implementation.
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

// RecordAnomalies stores a batch of events in one transaction. An empty
// batch is a no-op.
func (s *Service) RecordAnomalies(ctx context.Context, agentID string, events []AnomalyEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		q := s.queries.WithTx(tx)
		for _, event := range events {
			mse, err := json.Marshal(event.PerChannelMse)
			if err != nil {
				return fmt.Errorf("failed to encode per-channel mse: %w", err)
			}
			channels, err := json.Marshal(event.ChannelNames)
			if err != nil {
				return fmt.Errorf("failed to encode channel names: %w", err)
			}

			if err := q.CreateAnomalyEvent(ctx, store.CreateAnomalyEventParams{
				AgentID:        agentID,
				TraceID:        event.TraceID,
				Timestamp:      event.Timestamp,
				Group:          event.Group,
				AlertState:     event.AlertState,
				RawScore:       event.RawScore,
				EmaScore:       event.EmaScore,
				PerChannelMse:  string(mse),
				ChannelNames:   string(channels),
				DriftTriggered: event.DriftTriggered,
				SpikeTriggered: event.SpikeTriggered,
				ModelID:        event.ModelID,
			}); err != nil {
				return fmt.Errorf("failed to store anomaly event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.Debug("Anomaly events stored", "agent_id", agentID, "count", len(events))
	return len(events), nil
}
