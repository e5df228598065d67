package systemtest

import (
	"context"
	"testing"
	"time"

	"github.com/faros-robotics/faros-server/internal/agents"
	internalhttp "github.com/faros-robotics/faros-server/internal/api/http"
	"github.com/faros-robotics/faros-server/internal/auth"
	"github.com/faros-robotics/faros-server/internal/commands"
	"github.com/faros-robotics/faros-server/internal/db"
	"github.com/faros-robotics/faros-server/internal/enrollment"
	"github.com/faros-robotics/faros-server/internal/telemetry"
	"github.com/faros-robotics/faros-server/systemtest/postgres"
	"github.com/faros-robotics/faros-server/systemtest/tests"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "system-test-secret"

func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping system tests in short mode")
	}

	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	container, dbURL, err := postgres.StartPostgres(ctx, "faros", "faros", "faros")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = postgres.TerminatePostgres(context.Background(), container)
	})

	require.NoError(t, db.RunMigrations(dbURL, "public"))

	pool, err := db.InitDB(ctx, dbURL, "public")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	authService := auth.NewService(pool, auth.Config{JWTSecret: jwtSecret, TokenTTL: time.Hour})
	directory := agents.NewService(pool)
	telemetryService := telemetry.NewService(pool)

	buildRouter := func(registrar *enrollment.Service, queue *commands.Service) *gin.Engine {
		engine := gin.New()
		internalhttp.SetupRoute(engine, &internalhttp.Services{
			Auth:      authService,
			Directory: directory,
			Registrar: registrar,
			Queue:     queue,
			Telemetry: telemetryService,
			JWTSecret: jwtSecret,
			BaseURL:   "http://server.test",
		})
		return engine
	}

	router := buildRouter(
		enrollment.NewService(pool, directory, enrollment.Config{}),
		commands.NewService(pool, commands.Config{}),
	)

	// Same database, but every code and command is born expired.
	expiredRouter := buildRouter(
		enrollment.NewService(pool, directory, enrollment.Config{TTL: time.Nanosecond}),
		commands.NewService(pool, commands.Config{TTL: time.Nanosecond}),
	)

	t.Run("Register", func(t *testing.T) { tests.TestRegister(t, router, jwtSecret) })
	t.Run("Login", func(t *testing.T) { tests.TestLogin(t, router, jwtSecret) })
	t.Run("DeviceFlow", func(t *testing.T) { tests.TestDeviceFlow(t, router) })
	t.Run("DeviceFlowExpiry", func(t *testing.T) { tests.TestDeviceFlowExpiry(t, router, expiredRouter) })
	t.Run("AgentDirectory", func(t *testing.T) { tests.TestAgentDirectory(t, router) })
	t.Run("CommandQueue", func(t *testing.T) { tests.TestCommandQueue(t, router) })
	t.Run("CommandExpiry", func(t *testing.T) { tests.TestCommandExpiry(t, router, expiredRouter) })
	t.Run("Telemetry", func(t *testing.T) { tests.TestTelemetry(t, router, pool) })
	t.Run("HealthCheck", func(t *testing.T) { tests.TestHealthCheck(t, router) })
}
