package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/faros-robotics/faros-server/internal/db/store"
	"github.com/faros-robotics/faros-server/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetry(t *testing.T, router *gin.Engine, pool *pgxpool.Pool) {
	token := registerAndLogin(t, router, "telemetryowner")
	agentID, apiKey := enrollAgent(t, router, token, "telemetry-rover")
	queries := store.New(pool)

	t.Run("heartbeat updates liveness", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/agents/heartbeat", dto.HeartbeatRequest{
			Health: json.RawMessage(`{"battery":0.87,"temp_c":41.2}`),
		}, apiKey)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONWithAuth(router, "GET", "/api/agents/"+agentID, nil, token)
		require.Equal(t, http.StatusOK, rr.Code)

		var agent dto.AgentResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &agent))
		assert.NotNil(t, agent.LastSeenAt)
	})

	t.Run("heartbeat requires key", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/agents/heartbeat", dto.HeartbeatRequest{})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("anomaly batch stored", func(t *testing.T) {
		before, err := queries.CountAnomalyEventsByAgent(context.Background(), agentID)
		require.NoError(t, err)

		events := []telemetry.AnomalyEvent{
			{
				TraceID:        "trace-1",
				Timestamp:      1756600000.25,
				Group:          "drive",
				AlertState:     "alert",
				RawScore:       0.93,
				EmaScore:       0.88,
				PerChannelMse:  []float64{0.4, 0.9},
				ChannelNames:   []string{"motor_l", "motor_r"},
				DriftTriggered: true,
				ModelID:        "model-7",
			},
			{
				TraceID:   "trace-2",
				Timestamp: 1756600001.25,
				Group:     "drive",
				RawScore:  0.12,
			},
		}
		rr := doJSONWithAuth(router, "POST", "/api/agents/anomalies", events, apiKey)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.AnomaliesResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Stored)

		after, err := queries.CountAnomalyEventsByAgent(context.Background(), agentID)
		require.NoError(t, err)
		assert.Equal(t, before+2, after)
	})

	t.Run("empty anomaly batch is a no-op", func(t *testing.T) {
		before, err := queries.CountAnomalyEventsByAgent(context.Background(), agentID)
		require.NoError(t, err)

		rr := doJSONWithAuth(router, "POST", "/api/agents/anomalies", []telemetry.AnomalyEvent{}, apiKey)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.AnomaliesResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Stored)

		after, err := queries.CountAnomalyEventsByAgent(context.Background(), agentID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}
