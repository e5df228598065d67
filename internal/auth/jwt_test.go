package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	config := Config{JWTSecret: "test-secret", TokenTTL: time.Hour}

	token, err := GenerateToken(config, "user-1", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken("test-secret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	config := Config{JWTSecret: "test-secret", TokenTTL: time.Hour}

	token, err := GenerateToken(config, "user-1", "alice")
	require.NoError(t, err)

	_, err = ValidateToken("other-secret", token)
	assert.Error(t, err)
}

func TestValidateTokenExpired(t *testing.T) {
	config := Config{JWTSecret: "test-secret", TokenTTL: -time.Minute}

	token, err := GenerateToken(config, "user-1", "alice")
	require.NoError(t, err)

	_, err = ValidateToken("test-secret", token)
	assert.Error(t, err)
}

func TestValidateTokenGarbage(t *testing.T) {
	_, err := ValidateToken("test-secret", "not-a-token")
	assert.Error(t, err)
}
