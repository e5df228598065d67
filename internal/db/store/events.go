package store

import "context"

type CreateAnomalyEventParams struct {
	AgentID        string
	TraceID        string
	Timestamp      float64
	Group          string
	AlertState     string
	RawScore       float64
	EmaScore       float64
	PerChannelMse  string
	ChannelNames   string
	DriftTriggered bool
	SpikeTriggered bool
	ModelID        string
}

func (q *Queries) CreateAnomalyEvent(ctx context.Context, arg CreateAnomalyEventParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO anomaly_events (agent_id, trace_id, ts, group_name, alert_state,
			raw_score, ema_score, per_channel_mse, channel_names,
			drift_triggered, spike_triggered, model_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		arg.AgentID, arg.TraceID, arg.Timestamp, arg.Group, arg.AlertState,
		arg.RawScore, arg.EmaScore, arg.PerChannelMse, arg.ChannelNames,
		arg.DriftTriggered, arg.SpikeTriggered, arg.ModelID,
	)
	return err
}

func (q *Queries) CountAnomalyEventsByAgent(ctx context.Context, agentID string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM anomaly_events WHERE agent_id = $1`,
		agentID,
	).Scan(&count)
	return count, err
}
