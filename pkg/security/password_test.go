package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrepires/biblioteca-backend/pkg/config"
)

func testPasswordConfig() config.PasswordConfig {
	// Small parameters keep the test fast.
	return config.PasswordConfig{
		ArgonMemoryKB:    8,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     8,
		ArgonKeyLen:      16,
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	cfg := testPasswordConfig()

	encoded, err := HashPassword("staff123", cfg)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$"), "unexpected hash format %q", encoded)

	ok, err := VerifyPassword("staff123", encoded)
	require.NoError(t, err)
	assert.True(t, ok, "expected password to verify")

	ok, err = VerifyPassword("wrong", encoded)
	require.NoError(t, err)
	assert.False(t, ok, "expected wrong password to fail")
}

func TestHashPasswordUniqueSalts(t *testing.T) {
	cfg := testPasswordConfig()

	first, err := HashPassword("staff123", cfg)
	require.NoError(t, err)
	second, err := HashPassword("staff123", cfg)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "same password should never produce the same encoding")
}

func TestHashPasswordEmpty(t *testing.T) {
	_, err := HashPassword("", testPasswordConfig())
	require.Error(t, err)
}

func TestVerifyPasswordMalformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"not-a-hash",
		"$argon2i$v=19$m=8,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA",
	} {
		_, err := VerifyPassword("pw", encoded)
		require.Error(t, err, "expected error for %q", encoded)
	}
}
