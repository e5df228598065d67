package credentials

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUserCode(t *testing.T) {
	code, err := GenerateUserCode()
	require.NoError(t, err)

	assert.Len(t, code, 9)
	assert.Equal(t, byte('-'), code[4])
	for i, c := range code {
		if i == 4 {
			continue
		}
		assert.Contains(t, userCodeAlphabet, string(c))
	}
}

func TestGenerateUserCodeUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateUserCode()
		require.NoError(t, err)
		assert.False(t, seen[code], "duplicate user code %s", code)
		seen[code] = true
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "fk_"))
	// 32 bytes base64url without padding = 43 chars
	assert.Len(t, key, 3+43)
	assert.NotContains(t, key[3:], "+")
	assert.NotContains(t, key[3:], "/")
	assert.NotContains(t, key, "=")
}

func TestGenerateDeviceCode(t *testing.T) {
	code, err := GenerateDeviceCode()
	require.NoError(t, err)
	assert.Len(t, code, 43)

	other, err := GenerateDeviceCode()
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestHashKey(t *testing.T) {
	hash := HashKey("fk_test")
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashKey("fk_test"))
	assert.NotEqual(t, hash, HashKey("fk_other"))
}
