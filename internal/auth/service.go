package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/faros-robotics/faros-server/internal/db/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// User is an operator account.
type User struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

// Service owns operator accounts and resolves bearer tokens to operator
// identities. Everything else in the server treats it as the identity
// gateway; the OAuth code exchange lives outside this repository.
type Service struct {
	queries *store.Queries
	config  Config
}

func NewService(pool *pgxpool.Pool, config Config) *Service {
	return &Service{
		queries: store.New(pool),
		config:  config,
	}
}

func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	row, err := s.queries.CreateUser(ctx, store.CreateUserParams{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrUsernameExists
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}

	return userFromRow(row), nil
}

func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	row, err := s.queries.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("query user: %w", err)
	}

	if !CheckPassword(password, row.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.config, row.ID, row.Username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ResolveToken validates a bearer token and loads the operator it names.
func (s *Service) ResolveToken(ctx context.Context, token string) (User, error) {
	claims, err := ValidateToken(s.config.JWTSecret, token)
	if err != nil {
		return User{}, ErrInvalidToken
	}

	row, err := s.queries.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrInvalidToken
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return userFromRow(row), nil
}

func userFromRow(row store.User) User {
	return User{
		ID:        row.ID,
		Username:  row.Username,
		CreatedAt: row.CreatedAt,
	}
}
