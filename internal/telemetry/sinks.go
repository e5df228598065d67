// Package telemetry handles agent-reported side channels: heartbeats and
// anomaly events. Both are consumed through narrow single-method
// interfaces so transports can swap implementations by composition.
package telemetry

import (
	"context"
	"encoding/json"
)

// HeartbeatSink records the latest health payload for an agent.
type HeartbeatSink interface {
	RecordHeartbeat(ctx context.Context, agentID string, payload json.RawMessage) error
}

// AnomalySink records a batch of anomaly events for an agent and reports
// how many were stored.
type AnomalySink interface {
	RecordAnomalies(ctx context.Context, agentID string, events []AnomalyEvent) (int, error)
}

// AnomalyEvent is one detector observation reported by an agent.
type AnomalyEvent struct {
	TraceID        string    `json:"trace_id"`
	Timestamp      float64   `json:"timestamp"`
	Group          string    `json:"group"`
	AlertState     string    `json:"alert_state"`
	RawScore       float64   `json:"raw_score"`
	EmaScore       float64   `json:"ema_score"`
	PerChannelMse  []float64 `json:"per_channel_mse"`
	ChannelNames   []string  `json:"channel_names"`
	DriftTriggered bool      `json:"drift_triggered"`
	SpikeTriggered bool      `json:"spike_triggered"`
	ModelID        string    `json:"model_id"`
}
