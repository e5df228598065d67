package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/faros-robotics/faros-server/internal/api/http/dto"
	"github.com/faros-robotics/faros-server/internal/enrollment"
)

func runEnroll(args []string) error {
	fs := flag.NewFlagSet("enroll", flag.ExitOnError)
	server := fs.String("server", "", "Server URL (e.g., http://server:8080)")
	name := fs.String("name", "", "Agent name")
	robotType := fs.String("robot-type", "generic", "Robot type")
	credPath := fs.String("credentials", defaultCredentialsPath(), "Where to store the issued credentials")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *server == "" {
		return fmt.Errorf("--server is required")
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	client := newAPIClient(*server, "")

	var start dto.StartDeviceFlowResponse
	err := client.postJSON("/api/agents/device/start", dto.StartDeviceFlowRequest{
		AgentName: *name,
		RobotType: *robotType,
	}, &start)
	if err != nil {
		return fmt.Errorf("failed to start enrollment: %w", err)
	}

	fmt.Println("Enrollment started.")
	fmt.Printf("  Code: %s\n", start.UserCode)
	fmt.Printf("  Approve at: %s\n", start.VerificationURL)
	fmt.Println()
	fmt.Println("Waiting for approval...")

	interval := time.Duration(start.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	deadline := time.Now().Add(time.Duration(start.ExpiresIn) * time.Second)

	for {
		if time.Now().After(deadline) {
			return fmt.Errorf("enrollment timed out, restart enroll")
		}
		time.Sleep(interval)

		var poll dto.PollDeviceFlowResponse
		err := client.postJSON("/api/agents/device/poll", dto.PollDeviceFlowRequest{
			DeviceCode: start.DeviceCode,
		}, &poll)
		if err != nil {
			return fmt.Errorf("failed to poll enrollment: %w", err)
		}

		switch poll.Status {
		case enrollment.StatusAuthorizationPending:
			continue
		case enrollment.StatusComplete:
			creds := credentials{
				Server:  *server,
				AgentID: poll.AgentID,
				APIKey:  poll.APIKey,
			}
			if err := saveCredentials(*credPath, creds); err != nil {
				return err
			}
			fmt.Println("Enrollment complete!")
			fmt.Printf("  Agent ID:    %s\n", poll.AgentID)
			fmt.Printf("  Credentials: %s\n", *credPath)
			return nil
		case enrollment.StatusExpired:
			return fmt.Errorf("enrollment code expired, restart enroll")
		case enrollment.StatusDenied:
			return fmt.Errorf("enrollment was denied")
		default:
			return fmt.Errorf("unexpected enrollment status %q", poll.Status)
		}
	}
}
