package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("0123456789abcdef", time.Hour)

	token, err := m.Generate(42)
	require.NoError(t, err)

	userID, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager("0123456789abcdef", time.Hour)
	token, err := m.Generate(42)
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		_, err := m.Validate("")
		assert.Error(t, err)
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewJWTManager("fedcba9876543210", time.Hour)
		_, err := other.Validate(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		late := NewJWTManager("0123456789abcdef", time.Hour)
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.Validate(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("other issuer", func(t *testing.T) {
		foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject: "42",
			Issuer:  "someone-else",
		}).SignedString([]byte("0123456789abcdef"))
		require.NoError(t, err)

		_, err = m.Validate(foreign)
		assert.Error(t, err)
	})

	t.Run("unsigned", func(t *testing.T) {
		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject: "42",
			Issuer:  issuer,
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.Validate(none)
		assert.Error(t, err)
	})
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.True(t, h.Verify(hash, "correct horse"))
	assert.False(t, h.Verify(hash, "battery staple"))
	assert.False(t, h.Verify("not-a-hash", "correct horse"))
}

func TestNewPasswordHasher_ClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(1).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(99).cost)
	assert.Equal(t, 12, NewPasswordHasher(12).cost)
}
