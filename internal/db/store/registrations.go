package store

import (
	"context"
	"time"
)

type DeviceRegistration struct {
	ID              string
	DeviceCode      string
	UserCode        string
	AgentName       string
	RobotType       string
	Status          string
	APIKeyPlaintext *string
	AgentID         *string
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

const registrationColumns = `id, device_code, user_code, agent_name, robot_type, status,
	api_key_plaintext, agent_id, expires_at, created_at`

func scanRegistration(row interface{ Scan(dest ...any) error }) (DeviceRegistration, error) {
	var r DeviceRegistration
	err := row.Scan(
		&r.ID, &r.DeviceCode, &r.UserCode, &r.AgentName, &r.RobotType, &r.Status,
		&r.APIKeyPlaintext, &r.AgentID, &r.ExpiresAt, &r.CreatedAt,
	)
	return r, err
}

type CreateDeviceRegistrationParams struct {
	ID         string
	DeviceCode string
	UserCode   string
	AgentName  string
	RobotType  string
	ExpiresAt  time.Time
}

func (q *Queries) CreateDeviceRegistration(ctx context.Context, arg CreateDeviceRegistrationParams) (DeviceRegistration, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO device_registrations (id, device_code, user_code, agent_name, robot_type, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+registrationColumns,
		arg.ID, arg.DeviceCode, arg.UserCode, arg.AgentName, arg.RobotType, arg.ExpiresAt,
	)
	return scanRegistration(row)
}

func (q *Queries) GetRegistrationByDeviceCode(ctx context.Context, deviceCode string) (DeviceRegistration, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+registrationColumns+`
		FROM device_registrations
		WHERE device_code = $1`,
		deviceCode,
	)
	return scanRegistration(row)
}

func (q *Queries) GetRegistrationByUserCode(ctx context.Context, userCode string) (DeviceRegistration, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+registrationColumns+`
		FROM device_registrations
		WHERE user_code = $1`,
		userCode,
	)
	return scanRegistration(row)
}

// GetRegistrationByUserCodeForUpdate row-locks the registration so that
// concurrent approve/deny calls serialize on it.
func (q *Queries) GetRegistrationByUserCodeForUpdate(ctx context.Context, userCode string) (DeviceRegistration, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+registrationColumns+`
		FROM device_registrations
		WHERE user_code = $1
		FOR UPDATE`,
		userCode,
	)
	return scanRegistration(row)
}

type ApproveRegistrationParams struct {
	ID              string
	AgentID         string
	APIKeyPlaintext string
}

// ApproveRegistration flips a registration to approved and captures the
// plaintext key for the single subsequent poll to retrieve.
func (q *Queries) ApproveRegistration(ctx context.Context, arg ApproveRegistrationParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE device_registrations
		SET status = 'approved', agent_id = $2, api_key_plaintext = $3
		WHERE id = $1`,
		arg.ID, arg.AgentID, arg.APIKeyPlaintext,
	)
	return err
}

func (q *Queries) DenyRegistration(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE device_registrations
		SET status = 'denied'
		WHERE id = $1`,
		id,
	)
	return err
}
