package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/faros-robotics/faros-server/internal/auth"
	"github.com/gin-gonic/gin"
)

// Accounts is the operator account surface the auth endpoints need.
type Accounts interface {
	Register(ctx context.Context, username, password string) (auth.User, error)
	Login(ctx context.Context, username, password string) (string, error)
}

type AuthHandler struct {
	accounts Accounts
}

func NewAuthHandler(accounts Accounts) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req dto.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.accounts.Register(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUsernameExists) {
			ctx.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
			return
		}
		slog.Error("Failed to register user", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		return
	}

	ctx.JSON(http.StatusCreated, dto.RegisterResponse{
		ID:       user.ID,
		Username: user.Username,
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req dto.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.accounts.Login(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		slog.Error("Failed to log in user", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to log in"})
		return
	}

	ctx.JSON(http.StatusOK, dto.LoginResponse{Token: token})
}
