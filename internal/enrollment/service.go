package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/faros-robotics/faros-server/internal/agents"
	"github.com/faros-robotics/faros-server/internal/credentials"
	"github.com/faros-robotics/faros-server/internal/db/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrRegistrationNotFound    = errors.New("unknown device registration code")
	ErrRegistrationExpired     = errors.New("device code has expired")
	ErrRegistrationAlreadyUsed = errors.New("device code already used")
)

const (
	DefaultTTL          = 15 * time.Minute
	DefaultPollInterval = 5 * time.Second
)

type Config struct {
	// TTL is the device-flow registration lifetime measured from Start.
	TTL time.Duration
	// PollInterval is the interval the device is told to poll at.
	PollInterval time.Duration
}

// Service is the device-flow registrar. It owns DeviceRegistration rows
// and is the only component that also drives the agent directory, to mint
// the agent and key inside the approval transaction.
type Service struct {
	pool    *pgxpool.Pool
	queries *store.Queries
	agents  *agents.Service
	config  Config
}

func NewService(pool *pgxpool.Pool, agentService *agents.Service, config Config) *Service {
	if config.TTL == 0 {
		config.TTL = DefaultTTL
	}
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &Service{
		pool:    pool,
		queries: store.New(pool),
		agents:  agentService,
		config:  config,
	}
}

// Start creates a fresh pending registration. A known agent name gets no
// shortcut: every enrollment attempt requires its own approval, which
// keeps the TTL meaningful after partial failures.
func (s *Service) Start(ctx context.Context, agentName, robotType string) (StartResult, error) {
	deviceCode, err := credentials.GenerateDeviceCode()
	if err != nil {
		return StartResult{}, fmt.Errorf("failed to generate device code: %w", err)
	}
	userCode, err := credentials.GenerateUserCode()
	if err != nil {
		return StartResult{}, fmt.Errorf("failed to generate user code: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := s.queries.WithTx(tx).CreateDeviceRegistration(ctx, store.CreateDeviceRegistrationParams{
			ID:         uuid.NewString(),
			DeviceCode: deviceCode,
			UserCode:   userCode,
			AgentName:  agentName,
			RobotType:  robotType,
			ExpiresAt:  time.Now().UTC().Add(s.config.TTL),
		})
		return err
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("failed to create device registration: %w", err)
	}

	slog.Info("Device flow started", "agent_name", agentName, "user_code", userCode)

	return StartResult{
		DeviceCode: deviceCode,
		UserCode:   userCode,
		ExpiresIn:  int(s.config.TTL.Seconds()),
		Interval:   int(s.config.PollInterval.Seconds()),
	}, nil
}

// Poll reports the registration status to the device. Expiry is judged
// against expires_at without mutating the row. A non-standard status is
// passed through verbatim rather than treated as an error.
func (s *Service) Poll(ctx context.Context, deviceCode string) (PollResult, error) {
	reg, err := s.queries.GetRegistrationByDeviceCode(ctx, deviceCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PollResult{}, ErrRegistrationNotFound
		}
		return PollResult{}, fmt.Errorf("failed to look up registration: %w", err)
	}

	if time.Now().UTC().After(reg.ExpiresAt) {
		return PollResult{Status: StatusExpired}, nil
	}

	if reg.Status == StatusPending {
		return PollResult{Status: StatusAuthorizationPending}, nil
	}

	if reg.Status == StatusApproved && reg.APIKeyPlaintext != nil && reg.AgentID != nil {
		return PollResult{
			Status:  StatusComplete,
			APIKey:  *reg.APIKeyPlaintext,
			AgentID: *reg.AgentID,
		}, nil
	}

	return PollResult{Status: reg.Status}, nil
}

// Approve finds-or-creates the agent by name, mints an API key, and
// captures the plaintext on the registration row for the one subsequent
// poll to retrieve. The whole sequence is one transaction.
func (s *Service) Approve(ctx context.Context, userCode, approverUserID string) (ApproveResult, error) {
	var result ApproveResult
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		q := s.queries.WithTx(tx)

		reg, err := s.lockPendingRegistration(ctx, q, userCode)
		if err != nil {
			return err
		}

		agent, err := s.agents.CreateOrReuseAgent(ctx, q, reg.AgentName, reg.RobotType, approverUserID)
		if err != nil {
			return err
		}

		plaintext, err := s.agents.IssueKey(ctx, q, agent.ID)
		if err != nil {
			return err
		}

		if err := q.ApproveRegistration(ctx, store.ApproveRegistrationParams{
			ID:              reg.ID,
			AgentID:         agent.ID,
			APIKeyPlaintext: plaintext,
		}); err != nil {
			return fmt.Errorf("failed to approve registration: %w", err)
		}

		result = ApproveResult{AgentID: agent.ID, AgentName: agent.Name}
		return nil
	})
	if err != nil {
		return ApproveResult{}, err
	}

	slog.Info("Device registration approved",
		"user_code", userCode,
		"agent_id", result.AgentID,
		"approver", approverUserID)

	return result, nil
}

// Deny is symmetric to Approve with no agent or key side effects.
func (s *Service) Deny(ctx context.Context, userCode string) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		q := s.queries.WithTx(tx)

		reg, err := s.lockPendingRegistration(ctx, q, userCode)
		if err != nil {
			return err
		}

		return q.DenyRegistration(ctx, reg.ID)
	})
	if err != nil {
		return err
	}

	slog.Info("Device registration denied", "user_code", userCode)
	return nil
}

// Describe is the read-only projection for the approval page.
func (s *Service) Describe(ctx context.Context, userCode string) (ApprovalInfo, error) {
	reg, err := s.queries.GetRegistrationByUserCode(ctx, userCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ApprovalInfo{}, ErrRegistrationNotFound
		}
		return ApprovalInfo{}, fmt.Errorf("failed to look up registration: %w", err)
	}

	if time.Now().UTC().After(reg.ExpiresAt) {
		return ApprovalInfo{}, ErrRegistrationExpired
	}

	return ApprovalInfo{
		UserCode:  reg.UserCode,
		AgentName: reg.AgentName,
		RobotType: reg.RobotType,
		Status:    reg.Status,
	}, nil
}

// lockPendingRegistration loads and row-locks a registration by user code
// and verifies it is still approvable.
func (s *Service) lockPendingRegistration(ctx context.Context, q *store.Queries, userCode string) (store.DeviceRegistration, error) {
	reg, err := q.GetRegistrationByUserCodeForUpdate(ctx, userCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.DeviceRegistration{}, ErrRegistrationNotFound
		}
		return store.DeviceRegistration{}, fmt.Errorf("failed to look up registration: %w", err)
	}

	if time.Now().UTC().After(reg.ExpiresAt) {
		return store.DeviceRegistration{}, ErrRegistrationExpired
	}
	if reg.Status != StatusPending {
		return store.DeviceRegistration{}, ErrRegistrationAlreadyUsed
	}

	return reg, nil
}
