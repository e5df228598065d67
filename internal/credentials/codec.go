package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	apiKeyPrefix = "fk_"
	apiKeyLength = 32 // 32 bytes = 256 bits

	userCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateUserCode generates an XXXX-XXXX human-typable code
// (uppercase alphanumeric) for the device-flow approval page.
func GenerateUserCode() (string, error) {
	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	code := make([]byte, 9)
	for i, b := range raw {
		pos := i
		if i >= 4 {
			pos++
		}
		code[pos] = userCodeAlphabet[int(b)%len(userCodeAlphabet)]
	}
	code[4] = '-'
	return string(code), nil
}

// GenerateAPIKey generates a plaintext agent API key with the "fk_" prefix.
// The plaintext is returned to the caller exactly once; only the hash is stored.
func GenerateAPIKey() (string, error) {
	raw := make([]byte, apiKeyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// GenerateDeviceCode generates the opaque device-side correlator for one
// enrollment attempt.
func GenerateDeviceCode() (string, error) {
	raw := make([]byte, apiKeyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashKey computes the SHA-256 hex digest of a plaintext key. The digest is
// the only form ever persisted.
func HashKey(plaintext string) string {
	hash := sha256.Sum256([]byte(plaintext))
	return fmt.Sprintf("%x", hash)
}
