package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/faros-robotics/faros-server/internal/auth"
	"github.com/faros-robotics/faros-server/internal/enrollment"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRegistrar struct {
	startResult   enrollment.StartResult
	startErr      error
	pollResult    enrollment.PollResult
	pollErr       error
	approveResult enrollment.ApproveResult
	approveErr    error
	denyErr       error
	info          enrollment.ApprovalInfo
	infoErr       error

	gotApprover string
	gotUserCode string
}

func (s *stubRegistrar) Start(_ context.Context, _, _ string) (enrollment.StartResult, error) {
	return s.startResult, s.startErr
}

func (s *stubRegistrar) Poll(_ context.Context, _ string) (enrollment.PollResult, error) {
	return s.pollResult, s.pollErr
}

func (s *stubRegistrar) Approve(_ context.Context, userCode, approverUserID string) (enrollment.ApproveResult, error) {
	s.gotUserCode = userCode
	s.gotApprover = approverUserID
	return s.approveResult, s.approveErr
}

func (s *stubRegistrar) Deny(_ context.Context, userCode string) error {
	s.gotUserCode = userCode
	return s.denyErr
}

func (s *stubRegistrar) Describe(_ context.Context, _ string) (enrollment.ApprovalInfo, error) {
	return s.info, s.infoErr
}

type stubTokens struct {
	user auth.User
	err  error
}

func (s *stubTokens) ResolveToken(_ context.Context, _ string) (auth.User, error) {
	return s.user, s.err
}

func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	}
}

func setupDeviceRouter(h *DeviceFlowHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/agents/device/start", h.Start)
	r.POST("/api/agents/device/poll", h.Poll)
	r.POST("/api/agents/device/approve", asUser("user-1"), h.Approve)
	r.POST("/api/agents/device/deny", asUser("user-1"), h.Deny)
	r.GET("/api/agents/device/:user_code", h.ApprovalPage)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, _ := http.NewRequest("POST", path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartDeviceFlow(t *testing.T) {
	registrar := &stubRegistrar{startResult: enrollment.StartResult{
		DeviceCode: "device-code",
		UserCode:   "ABCD-1234",
		ExpiresIn:  900,
		Interval:   5,
	}}
	h := NewDeviceFlowHandler(registrar, &stubTokens{}, "http://server:8080/")
	r := setupDeviceRouter(h)

	w := postJSON(t, r, "/api/agents/device/start", dto.StartDeviceFlowRequest{
		AgentName: "lab-arm",
		RobotType: "arm",
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp dto.StartDeviceFlowResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ABCD-1234", resp.UserCode)
	assert.Equal(t, 900, resp.ExpiresIn)
	assert.Equal(t, "http://server:8080/api/agents/device/ABCD-1234", resp.VerificationURL)
}

func TestStartDeviceFlowMissingFields(t *testing.T) {
	h := NewDeviceFlowHandler(&stubRegistrar{}, &stubTokens{}, "http://server:8080")
	r := setupDeviceRouter(h)

	w := postJSON(t, r, "/api/agents/device/start", map[string]string{"agent_name": "lab-arm"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPollDeviceFlowPending(t *testing.T) {
	registrar := &stubRegistrar{pollResult: enrollment.PollResult{Status: enrollment.StatusAuthorizationPending}}
	h := NewDeviceFlowHandler(registrar, &stubTokens{}, "http://server:8080")
	r := setupDeviceRouter(h)

	w := postJSON(t, r, "/api/agents/device/poll", dto.PollDeviceFlowRequest{DeviceCode: "device-code"})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "authorization_pending", resp["status"])
	assert.NotContains(t, resp, "api_key")
}

func TestPollDeviceFlowComplete(t *testing.T) {
	registrar := &stubRegistrar{pollResult: enrollment.PollResult{
		Status:  enrollment.StatusComplete,
		APIKey:  "fk_secret",
		AgentID: "agent-1",
	}}
	h := NewDeviceFlowHandler(registrar, &stubTokens{}, "http://server:8080")
	r := setupDeviceRouter(h)

	w := postJSON(t, r, "/api/agents/device/poll", dto.PollDeviceFlowRequest{DeviceCode: "device-code"})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.PollDeviceFlowResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "complete", resp.Status)
	assert.Equal(t, "fk_secret", resp.APIKey)
	assert.Equal(t, "agent-1", resp.AgentID)
}

func TestPollDeviceFlowUnknownCode(t *testing.T) {
	registrar := &stubRegistrar{pollErr: enrollment.ErrRegistrationNotFound}
	h := NewDeviceFlowHandler(registrar, &stubTokens{}, "http://server:8080")
	r := setupDeviceRouter(h)

	w := postJSON(t, r, "/api/agents/device/poll", dto.PollDeviceFlowRequest{DeviceCode: "nope"})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApproveDeviceFlow(t *testing.T) {
	registrar := &stubRegistrar{approveResult: enrollment.ApproveResult{AgentID: "agent-1", AgentName: "lab-arm"}}
	h := NewDeviceFlowHandler(registrar, &stubTokens{}, "http://server:8080")
	r := setupDeviceRouter(h)

	w := postJSON(t, r, "/api/agents/device/approve", dto.ApproveDeviceRequest{UserCode: "ABCD-1234"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", registrar.gotApprover)
	assert.Equal(t, "ABCD-1234", registrar.gotUserCode)

	var resp dto.ApproveDeviceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "agent-1", resp.AgentID)
}

func TestApproveDeviceFlowExpired(t *testing.T) {
	registrar := &stubRegistrar{approveErr: enrollment.ErrRegistrationExpired}
	h := NewDeviceFlowHandler(registrar, &stubTokens{}, "http://server:8080")
	r := setupDeviceRouter(h)

	w := postJSON(t, r, "/api/agents/device/approve", dto.ApproveDeviceRequest{UserCode: "ABCD-1234"})

	assert.Equal(t, http.StatusGone, w.Code)
}

func TestApproveDeviceFlowAlreadyUsed(t *testing.T) {
	registrar := &stubRegistrar{approveErr: enrollment.ErrRegistrationAlreadyUsed}
	h := NewDeviceFlowHandler(registrar, &stubTokens{}, "http://server:8080")
	r := setupDeviceRouter(h)

	w := postJSON(t, r, "/api/agents/device/approve", dto.ApproveDeviceRequest{UserCode: "ABCD-1234"})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDenyDeviceFlow(t *testing.T) {
	registrar := &stubRegistrar{}
	h := NewDeviceFlowHandler(registrar, &stubTokens{}, "http://server:8080")
	r := setupDeviceRouter(h)

	w := postJSON(t, r, "/api/agents/device/deny", dto.DenyDeviceRequest{UserCode: "ABCD-1234"})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.DenyDeviceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "denied", resp.Status)
}

func TestApprovalPageRequiresToken(t *testing.T) {
	h := NewDeviceFlowHandler(&stubRegistrar{}, &stubTokens{err: auth.ErrInvalidToken}, "http://server:8080")
	r := setupDeviceRouter(h)

	req, _ := http.NewRequest("GET", "/api/agents/device/ABCD-1234", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Sign in required")
}

func TestApprovalPagePending(t *testing.T) {
	registrar := &stubRegistrar{info: enrollment.ApprovalInfo{
		UserCode:  "ABCD-1234",
		AgentName: "lab-arm",
		RobotType: "arm",
		Status:    enrollment.StatusPending,
	}}
	h := NewDeviceFlowHandler(registrar, &stubTokens{user: auth.User{ID: "user-1"}}, "http://server:8080")
	r := setupDeviceRouter(h)

	req, _ := http.NewRequest("GET", "/api/agents/device/ABCD-1234?token=tok", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "lab-arm")
	assert.Contains(t, w.Body.String(), "ABCD-1234")
	assert.Contains(t, w.Body.String(), "Approve")
}

func TestApprovalPageExpired(t *testing.T) {
	registrar := &stubRegistrar{infoErr: enrollment.ErrRegistrationExpired}
	h := NewDeviceFlowHandler(registrar, &stubTokens{user: auth.User{ID: "user-1"}}, "http://server:8080")
	r := setupDeviceRouter(h)

	req, _ := http.NewRequest("GET", "/api/agents/device/ABCD-1234?token=tok", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusGone, w.Code)
}

func TestApprovalPageAlreadyHandled(t *testing.T) {
	registrar := &stubRegistrar{info: enrollment.ApprovalInfo{
		UserCode: "ABCD-1234",
		Status:   enrollment.StatusApproved,
	}}
	h := NewDeviceFlowHandler(registrar, &stubTokens{user: auth.User{ID: "user-1"}}, "http://server:8080")
	r := setupDeviceRouter(h)

	req, _ := http.NewRequest("GET", "/api/agents/device/ABCD-1234?token=tok", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "approved")
}
