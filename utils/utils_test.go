package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateJWT("user-1", "supervisor", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "supervisor", claims.Role)

	_, err = ParseJWT(token, []byte("other-secret"))
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateJWT("user-1", "citizen", secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(token, secret)
	assert.Error(t, err)
}
