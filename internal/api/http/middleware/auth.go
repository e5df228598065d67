package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/faros-robotics/faros-server/internal/agents"
	"github.com/faros-robotics/faros-server/internal/auth"
	"github.com/gin-gonic/gin"
)

// KeyResolver authenticates a plaintext agent API key.
type KeyResolver interface {
	ResolveKey(ctx context.Context, plaintext string) (agents.Agent, error)
}

func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := auth.ValidateToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

// AgentAuth resolves a Bearer API key to the agent it belongs to and
// stores the agent on the request context. Resolution also bumps the
// agent's last-seen timestamp, so every authenticated agent call doubles
// as a liveness signal.
func AgentAuth(resolver KeyResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		key := strings.TrimPrefix(header, "Bearer ")
		agent, err := resolver.ResolveKey(c.Request.Context(), key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		c.Set("agent_id", agent.ID)
		c.Set("agent", agent)
		c.Next()
	}
}
