package http

import (
	"github.com/faros-robotics/faros-server/internal/agents"
	"github.com/faros-robotics/faros-server/internal/api/http/handler"
	"github.com/faros-robotics/faros-server/internal/api/http/middleware"
	"github.com/faros-robotics/faros-server/internal/auth"
	"github.com/faros-robotics/faros-server/internal/commands"
	"github.com/faros-robotics/faros-server/internal/enrollment"
	"github.com/faros-robotics/faros-server/internal/telemetry"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Auth      *auth.Service
	Directory *agents.Service
	Registrar *enrollment.Service
	Queue     *commands.Service
	Telemetry *telemetry.Service
	JWTSecret string
	BaseURL   string
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	authHandler := handler.NewAuthHandler(srvs.Auth)
	engine.POST("/auth/register", authHandler.Register)
	engine.POST("/auth/login", authHandler.Login)

	deviceHandler := handler.NewDeviceFlowHandler(srvs.Registrar, srvs.Auth, srvs.BaseURL)
	agentsHandler := handler.NewAgentsHandler(srvs.Directory)
	commandsHandler := handler.NewCommandsHandler(srvs.Queue, srvs.Directory)
	agentAPIHandler := handler.NewAgentAPIHandler(srvs.Queue, srvs.Directory, srvs.Directory, srvs.Telemetry)

	operatorAuth := middleware.JWTAuth(srvs.JWTSecret)
	agentAuth := middleware.AgentAuth(srvs.Directory)

	api := engine.Group("/api/agents")
	{
		// Device flow. Start and poll are unauthenticated: the device has
		// no credentials yet. The approval page does its own token
		// resolution so it can accept a token query parameter.
		api.POST("/device/start", deviceHandler.Start)
		api.POST("/device/poll", deviceHandler.Poll)
		api.POST("/device/approve", operatorAuth, deviceHandler.Approve)
		api.POST("/device/deny", operatorAuth, deviceHandler.Deny)
		api.GET("/device/:user_code", deviceHandler.ApprovalPage)

		// Operator surface.
		api.GET("", operatorAuth, agentsHandler.List)
		api.GET("/:id", operatorAuth, agentsHandler.Get)
		api.DELETE("/:id/keys", operatorAuth, agentsHandler.RevokeKeys)
		api.POST("/:id/commands", operatorAuth, commandsHandler.Enqueue)
		api.GET("/:id/commands", operatorAuth, commandsHandler.List)
		api.GET("/:id/commands/:command_id", operatorAuth, commandsHandler.Get)

		// Agent surface, authenticated by API key.
		api.POST("/commands/poll", agentAuth, agentAPIHandler.PollCommands)
		api.POST("/commands/:command_id/ack", agentAuth, agentAPIHandler.AckCommand)
		api.POST("/commands/:command_id/output", agentAuth, agentAPIHandler.AppendOutput)
		api.POST("/heartbeat", agentAuth, agentAPIHandler.Heartbeat)
		api.POST("/anomalies", agentAuth, agentAPIHandler.Anomalies)
		api.POST("/logout", agentAuth, agentAPIHandler.Logout)
	}
}
