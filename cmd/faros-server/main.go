package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/faros-robotics/faros-server/internal/agents"
	internalhttp "github.com/faros-robotics/faros-server/internal/api/http"
	"github.com/faros-robotics/faros-server/internal/auth"
	"github.com/faros-robotics/faros-server/internal/commands"
	"github.com/faros-robotics/faros-server/internal/db"
	"github.com/faros-robotics/faros-server/internal/enrollment"
	"github.com/faros-robotics/faros-server/internal/telemetry"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Faros Server", "version", AppVersion)

	if err := db.RunMigrations(config.Db.Url, config.Db.Schema); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.InitDB(ctx, config.Db.Url, config.Db.Schema)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	authService := auth.NewService(pool, auth.Config{
		JWTSecret: config.Auth.JWTSecret,
		TokenTTL:  time.Duration(config.Auth.TokenExpireMinutes) * time.Minute,
	})
	directory := agents.NewService(pool)
	registrar := enrollment.NewService(pool, directory, enrollment.Config{
		TTL:          time.Duration(config.DeviceFlow.ExpireMinutes) * time.Minute,
		PollInterval: time.Duration(config.DeviceFlow.PollIntervalSeconds) * time.Second,
	})
	queue := commands.NewService(pool, commands.Config{
		TTL: time.Duration(config.Commands.TTLSeconds) * time.Second,
	})

	services := &internalhttp.Services{
		Auth:      authService,
		Directory: directory,
		Registrar: registrar,
		Queue:     queue,
		Telemetry: telemetry.NewService(pool),
		JWTSecret: config.Auth.JWTSecret,
		BaseURL:   config.Http.BaseURL,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}
