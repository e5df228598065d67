package tests

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userCodePattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}$`)

func TestDeviceFlow(t *testing.T, router *gin.Engine) {
	token := registerAndLogin(t, router, "flowoperator")

	t.Run("full flow", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/agents/device/start", dto.StartDeviceFlowRequest{
			AgentName: "flow-arm",
			RobotType: "arm",
		})
		require.Equal(t, http.StatusCreated, rr.Code)

		var start dto.StartDeviceFlowResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &start))
		assert.Regexp(t, userCodePattern, start.UserCode)
		assert.NotEmpty(t, start.DeviceCode)
		assert.Greater(t, start.ExpiresIn, 0)
		assert.Greater(t, start.Interval, 0)
		assert.Contains(t, start.VerificationURL, start.UserCode)

		// Not approved yet
		rr = doJSON(router, "POST", "/api/agents/device/poll", dto.PollDeviceFlowRequest{
			DeviceCode: start.DeviceCode,
		})
		require.Equal(t, http.StatusOK, rr.Code)

		var poll dto.PollDeviceFlowResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &poll))
		assert.Equal(t, "authorization_pending", poll.Status)
		assert.Empty(t, poll.APIKey)

		// Approval page shows the request
		page := doGET(router, "/api/agents/device/"+start.UserCode+"?token="+token)
		assert.Equal(t, http.StatusOK, page.Code)
		assert.Contains(t, page.Body.String(), "flow-arm")

		rr = doJSONWithAuth(router, "POST", "/api/agents/device/approve", dto.ApproveDeviceRequest{
			UserCode: start.UserCode,
		}, token)
		require.Equal(t, http.StatusOK, rr.Code)

		var approve dto.ApproveDeviceResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &approve))
		assert.Equal(t, "flow-arm", approve.AgentName)
		assert.NotEmpty(t, approve.AgentID)

		// Poll now carries the key
		rr = doJSON(router, "POST", "/api/agents/device/poll", dto.PollDeviceFlowRequest{
			DeviceCode: start.DeviceCode,
		})
		require.Equal(t, http.StatusOK, rr.Code)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &poll))
		assert.Equal(t, "complete", poll.Status)
		assert.True(t, strings.HasPrefix(poll.APIKey, "fk_"))
		assert.Equal(t, approve.AgentID, poll.AgentID)

		// Approving a used code conflicts
		rr = doJSONWithAuth(router, "POST", "/api/agents/device/approve", dto.ApproveDeviceRequest{
			UserCode: start.UserCode,
		}, token)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("approve requires token", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/agents/device/approve", dto.ApproveDeviceRequest{
			UserCode: "ABCD-1234",
		})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown device code", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/agents/device/poll", dto.PollDeviceFlowRequest{
			DeviceCode: "not-a-real-code",
		})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("unknown user code", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/agents/device/deny", dto.DenyDeviceRequest{
			UserCode: "ZZZZ-9999",
		}, token)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("deny flow", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/agents/device/start", dto.StartDeviceFlowRequest{
			AgentName: "denied-arm",
			RobotType: "arm",
		})
		require.Equal(t, http.StatusCreated, rr.Code)

		var start dto.StartDeviceFlowResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &start))

		rr = doJSONWithAuth(router, "POST", "/api/agents/device/deny", dto.DenyDeviceRequest{
			UserCode: start.UserCode,
		}, token)
		require.Equal(t, http.StatusOK, rr.Code)

		// The device sees the denial verbatim
		rr = doJSON(router, "POST", "/api/agents/device/poll", dto.PollDeviceFlowRequest{
			DeviceCode: start.DeviceCode,
		})
		require.Equal(t, http.StatusOK, rr.Code)

		var poll dto.PollDeviceFlowResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &poll))
		assert.Equal(t, "denied", poll.Status)
		assert.Empty(t, poll.APIKey)

		// No agent was created for it
		rr = doJSONWithAuth(router, "GET", "/api/agents", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)

		var list dto.ListAgentsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
		for _, agent := range list.Agents {
			assert.NotEqual(t, "denied-arm", agent.Name)
		}
	})

	t.Run("concurrent approval of shared name", func(t *testing.T) {
		startFlow := func(t *testing.T) dto.StartDeviceFlowResponse {
			t.Helper()
			rr := doJSON(router, "POST", "/api/agents/device/start", dto.StartDeviceFlowRequest{
				AgentName: "race-arm",
				RobotType: "arm",
			})
			require.Equal(t, http.StatusCreated, rr.Code)

			var start dto.StartDeviceFlowResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &start))
			return start
		}

		first := startFlow(t)
		second := startFlow(t)

		// Both approvals race to create the agent; the loser must reuse
		// the winner's row instead of failing.
		var wg sync.WaitGroup
		codes := make([]int, 2)
		for i, userCode := range []string{first.UserCode, second.UserCode} {
			wg.Add(1)
			go func(i int, userCode string) {
				defer wg.Done()
				rr := doJSONWithAuth(router, "POST", "/api/agents/device/approve", dto.ApproveDeviceRequest{
					UserCode: userCode,
				}, token)
				codes[i] = rr.Code
			}(i, userCode)
		}
		wg.Wait()

		assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)

		pollFlow := func(t *testing.T, deviceCode string) dto.PollDeviceFlowResponse {
			t.Helper()
			rr := doJSON(router, "POST", "/api/agents/device/poll", dto.PollDeviceFlowRequest{
				DeviceCode: deviceCode,
			})
			require.Equal(t, http.StatusOK, rr.Code)

			var poll dto.PollDeviceFlowResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &poll))
			require.Equal(t, "complete", poll.Status)
			return poll
		}

		firstPoll := pollFlow(t, first.DeviceCode)
		secondPoll := pollFlow(t, second.DeviceCode)
		assert.Equal(t, firstPoll.AgentID, secondPoll.AgentID)
		assert.NotEqual(t, firstPoll.APIKey, secondPoll.APIKey)
	})

	t.Run("name reuse mints same agent new key", func(t *testing.T) {
		firstID, firstKey := enrollAgent(t, router, token, "reused-arm")
		secondID, secondKey := enrollAgent(t, router, token, "reused-arm")

		assert.Equal(t, firstID, secondID)
		assert.NotEqual(t, firstKey, secondKey)

		// Both keys resolve to the same agent
		rr := doJSONWithAuth(router, "POST", "/api/agents/commands/poll", struct{}{}, firstKey)
		assert.Equal(t, http.StatusOK, rr.Code)
		rr = doJSONWithAuth(router, "POST", "/api/agents/commands/poll", struct{}{}, secondKey)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

// TestDeviceFlowExpiry starts registrations on a router whose device flow
// TTL is effectively zero, so every code is born expired.
func TestDeviceFlowExpiry(t *testing.T, router, expiredRouter *gin.Engine) {
	token := registerAndLogin(t, router, "expiryoperator")

	rr := doJSON(expiredRouter, "POST", "/api/agents/device/start", dto.StartDeviceFlowRequest{
		AgentName: "expired-arm",
		RobotType: "arm",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var start dto.StartDeviceFlowResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &start))

	// Expiry is judged at read time; the regular router agrees.
	rr = doJSON(router, "POST", "/api/agents/device/poll", dto.PollDeviceFlowRequest{
		DeviceCode: start.DeviceCode,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var poll dto.PollDeviceFlowResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &poll))
	assert.Equal(t, "expired", poll.Status)

	rr = doJSONWithAuth(router, "POST", "/api/agents/device/approve", dto.ApproveDeviceRequest{
		UserCode: start.UserCode,
	}, token)
	assert.Equal(t, http.StatusGone, rr.Code)

	rr = doJSONWithAuth(router, "POST", "/api/agents/device/deny", dto.DenyDeviceRequest{
		UserCode: start.UserCode,
	}, token)
	assert.Equal(t, http.StatusGone, rr.Code)
}
