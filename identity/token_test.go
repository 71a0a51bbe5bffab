package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	got, ok := TokenExpiry(signedToken(t, jwt.MapClaims{"sub": "u1", "exp": exp.Unix()}))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = TokenExpiry(signedToken(t, jwt.MapClaims{"sub": "u1"}))
	assert.False(t, ok, "no exp claim")

	_, ok = TokenExpiry("tok-1")
	assert.False(t, ok, "opaque token")
}

func TestCheckExpiry(t *testing.T) {
	now := time.Now()

	assert.NoError(t, CheckExpiry("tok-1", now))
	assert.NoError(t, CheckExpiry(signedToken(t, jwt.MapClaims{"exp": now.Add(time.Minute).Unix()}), now))

	err := CheckExpiry(signedToken(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()}), now)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
