package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/faros-robotics/faros-server/internal/api/http/dto"
)

func runAgent(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	credPath := fs.String("credentials", defaultCredentialsPath(), "Path to the credentials file")
	pollInterval := fs.Duration("poll-interval", 5*time.Second, "Command poll interval")
	heartbeatInterval := fs.Duration("heartbeat-interval", 30*time.Second, "Heartbeat interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	creds, err := loadCredentials(*credPath)
	if err != nil {
		return err
	}
	client := newAPIClient(creds.Server, creds.APIKey)

	slog.Info("Agent running", "agent_id", creds.AgentID, "server", creds.Server)

	pollTicker := time.NewTicker(*pollInterval)
	defer pollTicker.Stop()
	heartbeatTicker := time.NewTicker(*heartbeatInterval)
	defer heartbeatTicker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sendHeartbeat(client)

	for {
		select {
		case <-pollTicker.C:
			pollOnce(client)
		case <-heartbeatTicker.C:
			sendHeartbeat(client)
		case sig := <-quit:
			slog.Info("Received shutdown signal", "signal", sig)
			return nil
		}
	}
}

func pollOnce(client *apiClient) {
	var resp dto.PollCommandsResponse
	if err := client.postJSON("/api/agents/commands/poll", struct{}{}, &resp); err != nil {
		slog.Error("Command poll failed", "error", err)
		return
	}

	for _, command := range resp.Commands {
		handleCommand(client, command)
	}
}

// handleCommand runs a delivered command and reports the outcome. The
// server delivers each command exactly once, so a failure here is
// reported through ack rather than retried by re-polling.
func handleCommand(client *apiClient, command dto.CommandDelivery) {
	slog.Info("Command received", "command_id", command.CommandID, "type", command.Type)

	output := fmt.Sprintf("executing %s at %s\n", command.Type, time.Now().UTC().Format(time.RFC3339))
	err := client.postJSON("/api/agents/commands/"+command.CommandID+"/output", dto.AppendOutputRequest{
		Text: output,
	}, nil)
	if err != nil {
		slog.Error("Failed to append output", "error", err, "command_id", command.CommandID)
	}

	result, _ := json.Marshal(map[string]string{"status": "completed"})
	err = client.postJSON("/api/agents/commands/"+command.CommandID+"/ack", dto.AckCommandRequest{
		Result: result,
	}, nil)
	if err != nil {
		slog.Error("Failed to ack command", "error", err, "command_id", command.CommandID)
		return
	}

	slog.Info("Command acknowledged", "command_id", command.CommandID)
}

func sendHeartbeat(client *apiClient) {
	health, _ := json.Marshal(map[string]any{
		"uptime_ok": true,
		"sent_at":   time.Now().UTC().Format(time.RFC3339),
	})
	if err := client.postJSON("/api/agents/heartbeat", dto.HeartbeatRequest{Health: health}, nil); err != nil {
		slog.Error("Heartbeat failed", "error", err)
		return
	}
	slog.Debug("Heartbeat sent")
}

func runLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	credPath := fs.String("credentials", defaultCredentialsPath(), "Path to the credentials file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	creds, err := loadCredentials(*credPath)
	if err != nil {
		return err
	}
	client := newAPIClient(creds.Server, creds.APIKey)

	var resp dto.RevokeKeysResponse
	if err := client.postJSON("/api/agents/logout", struct{}{}, &resp); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}

	if err := os.Remove(*credPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}

	fmt.Printf("Logged out, %d key(s) revoked.\n", resp.Revoked)
	return nil
}
