package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/faros-robotics/faros-server/internal/auth"
	"github.com/faros-robotics/faros-server/internal/enrollment"
	"github.com/gin-gonic/gin"
)

// Registrar drives the device enrollment flow.
type Registrar interface {
	Start(ctx context.Context, agentName, robotType string) (enrollment.StartResult, error)
	Poll(ctx context.Context, deviceCode string) (enrollment.PollResult, error)
	Approve(ctx context.Context, userCode, approverUserID string) (enrollment.ApproveResult, error)
	Deny(ctx context.Context, userCode string) error
	Describe(ctx context.Context, userCode string) (enrollment.ApprovalInfo, error)
}

// TokenResolver authenticates the operator loading the browser approval
// page, where no Authorization header is available.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (auth.User, error)
}

type DeviceFlowHandler struct {
	registrar Registrar
	tokens    TokenResolver
	baseURL   string
}

func NewDeviceFlowHandler(registrar Registrar, tokens TokenResolver, baseURL string) *DeviceFlowHandler {
	return &DeviceFlowHandler{
		registrar: registrar,
		tokens:    tokens,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

func (h *DeviceFlowHandler) Start(ctx *gin.Context) {
	var req dto.StartDeviceFlowRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.registrar.Start(ctx.Request.Context(), req.AgentName, req.RobotType)
	if err != nil {
		slog.Error("Failed to start device flow", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start device flow"})
		return
	}

	ctx.JSON(http.StatusCreated, dto.StartDeviceFlowResponse{
		DeviceCode:      result.DeviceCode,
		UserCode:        result.UserCode,
		ExpiresIn:       result.ExpiresIn,
		Interval:        result.Interval,
		VerificationURL: h.baseURL + "/api/agents/device/" + result.UserCode,
	})
}

func (h *DeviceFlowHandler) Poll(ctx *gin.Context) {
	var req dto.PollDeviceFlowRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.registrar.Poll(ctx.Request.Context(), req.DeviceCode)
	if err != nil {
		if errors.Is(err, enrollment.ErrRegistrationNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown device code"})
			return
		}
		slog.Error("Failed to poll device flow", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to poll device flow"})
		return
	}

	ctx.JSON(http.StatusOK, dto.PollDeviceFlowResponse{
		Status:  result.Status,
		APIKey:  result.APIKey,
		AgentID: result.AgentID,
	})
}

func (h *DeviceFlowHandler) Approve(ctx *gin.Context) {
	var req dto.ApproveDeviceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.registrar.Approve(ctx.Request.Context(), req.UserCode, ctx.GetString("user_id"))
	if err != nil {
		h.writeApprovalError(ctx, err, "approve")
		return
	}

	ctx.JSON(http.StatusOK, dto.ApproveDeviceResponse{
		AgentID:   result.AgentID,
		AgentName: result.AgentName,
	})
}

func (h *DeviceFlowHandler) Deny(ctx *gin.Context) {
	var req dto.DenyDeviceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registrar.Deny(ctx.Request.Context(), req.UserCode); err != nil {
		h.writeApprovalError(ctx, err, "deny")
		return
	}

	ctx.JSON(http.StatusOK, dto.DenyDeviceResponse{Status: enrollment.StatusDenied})
}

// ApprovalPage renders the browser page an operator lands on from the
// verification URL. The operator token is taken from the Authorization
// header, a token query parameter, or the faros_token cookie.
func (h *DeviceFlowHandler) ApprovalPage(ctx *gin.Context) {
	token := bearerToken(ctx)
	if token == "" {
		renderPage(ctx, http.StatusUnauthorized, loginRequiredPage{UserCode: ctx.Param("user_code")})
		return
	}
	if _, err := h.tokens.ResolveToken(ctx.Request.Context(), token); err != nil {
		renderPage(ctx, http.StatusUnauthorized, loginRequiredPage{UserCode: ctx.Param("user_code")})
		return
	}

	info, err := h.registrar.Describe(ctx.Request.Context(), ctx.Param("user_code"))
	if err != nil {
		switch {
		case errors.Is(err, enrollment.ErrRegistrationNotFound):
			renderPage(ctx, http.StatusNotFound, messagePage{
				Title:   "Unknown code",
				Message: "No enrollment request matches this code.",
			})
		case errors.Is(err, enrollment.ErrRegistrationExpired):
			renderPage(ctx, http.StatusGone, messagePage{
				Title:   "Code expired",
				Message: "This enrollment request has expired. Restart enrollment on the device.",
			})
		default:
			slog.Error("Failed to load approval page", "error", err)
			renderPage(ctx, http.StatusInternalServerError, messagePage{
				Title:   "Something went wrong",
				Message: "Could not load the enrollment request. Try again.",
			})
		}
		return
	}

	if info.Status != enrollment.StatusPending {
		renderPage(ctx, http.StatusOK, messagePage{
			Title:   "Already handled",
			Message: "This enrollment request was already " + info.Status + ".",
		})
		return
	}

	renderPage(ctx, http.StatusOK, approvalPage{
		UserCode:  info.UserCode,
		AgentName: info.AgentName,
		RobotType: info.RobotType,
		Token:     token,
	})
}

func (h *DeviceFlowHandler) writeApprovalError(ctx *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, enrollment.ErrRegistrationNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown user code"})
	case errors.Is(err, enrollment.ErrRegistrationExpired):
		ctx.JSON(http.StatusGone, gin.H{"error": "device code has expired"})
	case errors.Is(err, enrollment.ErrRegistrationAlreadyUsed):
		ctx.JSON(http.StatusConflict, gin.H{"error": "device code already used"})
	default:
		slog.Error("Failed to "+action+" device registration", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action + " registration"})
	}
}

func bearerToken(ctx *gin.Context) string {
	if header := ctx.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if token := ctx.Query("token"); token != "" {
		return token
	}
	if token, err := ctx.Cookie("faros_token"); err == nil {
		return token
	}
	return ""
}
