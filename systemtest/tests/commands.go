package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandQueue(t *testing.T, router *gin.Engine) {
	token := registerAndLogin(t, router, "queueowner")
	agentID, apiKey := enrollAgent(t, router, token, "queue-rover")

	enqueue := func(t *testing.T, commandType string) string {
		t.Helper()
		rr := doJSONWithAuth(router, "POST", "/api/agents/"+agentID+"/commands", dto.EnqueueCommandRequest{
			Type:    commandType,
			Payload: json.RawMessage(`{"arg":"` + commandType + `"}`),
		}, token)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var resp dto.CommandResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Equal(t, "pending", resp.Status)
		return resp.ID
	}

	t.Run("fifo delivery exactly once", func(t *testing.T) {
		idA := enqueue(t, "cmd-a")
		idB := enqueue(t, "cmd-b")
		idC := enqueue(t, "cmd-c")

		rr := doJSONWithAuth(router, "POST", "/api/agents/commands/poll", struct{}{}, apiKey)
		require.Equal(t, http.StatusOK, rr.Code)

		var poll dto.PollCommandsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &poll))
		require.Len(t, poll.Commands, 3)
		assert.Equal(t, []string{idA, idB, idC}, []string{
			poll.Commands[0].CommandID,
			poll.Commands[1].CommandID,
			poll.Commands[2].CommandID,
		})
		for _, command := range poll.Commands {
			assert.Equal(t, command.CommandID, command.TraceID)
		}

		// A second poll delivers nothing
		rr = doJSONWithAuth(router, "POST", "/api/agents/commands/poll", struct{}{}, apiKey)
		require.Equal(t, http.StatusOK, rr.Code)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &poll))
		assert.Empty(t, poll.Commands)
	})

	t.Run("output and ack lifecycle", func(t *testing.T) {
		id := enqueue(t, "lifecycle")

		rr := doJSONWithAuth(router, "POST", "/api/agents/commands/poll", struct{}{}, apiKey)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONWithAuth(router, "POST", "/api/agents/commands/"+id+"/output", dto.AppendOutputRequest{
			Text: "line 1\n",
		}, apiKey)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONWithAuth(router, "POST", "/api/agents/commands/"+id+"/output", dto.AppendOutputRequest{
			Text: "line 2\n",
		}, apiKey)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONWithAuth(router, "POST", "/api/agents/commands/"+id+"/ack", dto.AckCommandRequest{
			Result: json.RawMessage(`{"exit_code":0}`),
		}, apiKey)
		require.Equal(t, http.StatusOK, rr.Code)

		var acked dto.CommandResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &acked))
		assert.Equal(t, "acked", acked.Status)

		// Ack is exclusive
		rr = doJSONWithAuth(router, "POST", "/api/agents/commands/"+id+"/ack", dto.AckCommandRequest{}, apiKey)
		assert.Equal(t, http.StatusConflict, rr.Code)

		// Output after ack is rejected
		rr = doJSONWithAuth(router, "POST", "/api/agents/commands/"+id+"/output", dto.AppendOutputRequest{
			Text: "too late\n",
		}, apiKey)
		assert.Equal(t, http.StatusConflict, rr.Code)

		// Operator view has the concatenated output and the result
		rr = doJSONWithAuth(router, "GET", "/api/agents/"+agentID+"/commands/"+id, nil, token)
		require.Equal(t, http.StatusOK, rr.Code)

		var got dto.CommandResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, "acked", got.Status)
		assert.Equal(t, "line 1\nline 2\n", got.Output)
		assert.JSONEq(t, `{"exit_code":0}`, string(got.Result))
		assert.NotNil(t, got.DeliveredAt)
		assert.NotNil(t, got.AckedAt)
	})

	t.Run("output before delivery rejected", func(t *testing.T) {
		id := enqueue(t, "undelivered")

		rr := doJSONWithAuth(router, "POST", "/api/agents/commands/"+id+"/output", dto.AppendOutputRequest{
			Text: "early\n",
		}, apiKey)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("status filter", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/agents/"+agentID+"/commands?status=acked", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)

		var list dto.ListCommandsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
		require.NotEmpty(t, list.Commands)
		for _, command := range list.Commands {
			assert.Equal(t, "acked", command.Status)
		}
	})

	t.Run("empty type rejected", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/agents/"+agentID+"/commands", dto.EnqueueCommandRequest{
			Type: "   ",
		}, token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("foreign commands hidden", func(t *testing.T) {
		id := enqueue(t, "private")

		_, otherKey := enrollAgent(t, router, token, "queue-rover-2")
		rr := doJSONWithAuth(router, "POST", "/api/agents/commands/"+id+"/ack", dto.AckCommandRequest{}, otherKey)
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr = doJSONWithAuth(router, "POST", "/api/agents/commands/no-such-command/ack", dto.AckCommandRequest{}, apiKey)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("operator scoped to owner", func(t *testing.T) {
		otherToken := registerAndLogin(t, router, "queuestranger")
		rr := doJSONWithAuth(router, "POST", "/api/agents/"+agentID+"/commands", dto.EnqueueCommandRequest{
			Type: "intrusion",
		}, otherToken)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

// TestCommandExpiry enqueues through the regular router and polls through
// one whose delivery TTL is effectively zero, so the sweep expires
// everything instead of delivering it.
func TestCommandExpiry(t *testing.T, router, expiredRouter *gin.Engine) {
	token := registerAndLogin(t, router, "expiryqueueowner")
	agentID, apiKey := enrollAgent(t, router, token, "expiry-rover")

	rr := doJSONWithAuth(router, "POST", "/api/agents/"+agentID+"/commands", dto.EnqueueCommandRequest{
		Type: "stale",
	}, token)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created dto.CommandResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = doJSONWithAuth(expiredRouter, "POST", "/api/agents/commands/poll", struct{}{}, apiKey)
	require.Equal(t, http.StatusOK, rr.Code)

	var poll dto.PollCommandsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &poll))
	assert.Empty(t, poll.Commands)

	// The command is terminally expired with the sweep recorded
	rr = doJSONWithAuth(router, "GET", "/api/agents/"+agentID+"/commands/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, rr.Code)

	var got dto.CommandResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "expired", got.Status)
	assert.NotNil(t, got.DeliveredAt)
	assert.Nil(t, got.AckedAt)

	// Acking an expired command conflicts
	rr = doJSONWithAuth(router, "POST", "/api/agents/commands/"+created.ID+"/ack", dto.AckCommandRequest{}, apiKey)
	assert.Equal(t, http.StatusConflict, rr.Code)
}
