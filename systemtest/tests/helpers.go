package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func doGET(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func doJSONWithAuth(router *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// registerAndLogin creates an operator account and returns its token.
func registerAndLogin(t *testing.T, router *gin.Engine, username string) string {
	t.Helper()

	rr := doJSON(router, "POST", "/auth/register", dto.RegisterRequest{
		Username: username,
		Password: "password123",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = doJSON(router, "POST", "/auth/login", dto.LoginRequest{
		Username: username,
		Password: "password123",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp dto.LoginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Token
}

// enrollAgent drives a full device flow for a new agent and returns the
// minted identity.
func enrollAgent(t *testing.T, router *gin.Engine, token, name string) (agentID, apiKey string) {
	t.Helper()

	rr := doJSON(router, "POST", "/api/agents/device/start", dto.StartDeviceFlowRequest{
		AgentName: name,
		RobotType: "rover",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var start dto.StartDeviceFlowResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &start))

	rr = doJSONWithAuth(router, "POST", "/api/agents/device/approve", dto.ApproveDeviceRequest{
		UserCode: start.UserCode,
	}, token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSON(router, "POST", "/api/agents/device/poll", dto.PollDeviceFlowRequest{
		DeviceCode: start.DeviceCode,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var poll dto.PollDeviceFlowResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &poll))
	require.Equal(t, "complete", poll.Status)
	require.NotEmpty(t, poll.APIKey)
	require.NotEmpty(t, poll.AgentID)

	return poll.AgentID, poll.APIKey
}
