package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewAuthService_RejectsShortSecret(t *testing.T) {
	_, err := NewAuthService("short", time.Hour)
	assert.ErrorIs(t, err, ErrSecretTooShort)
}

func TestAuthService_RoundTrip(t *testing.T) {
	auth, err := NewAuthService(testSecret, time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := auth.GenerateToken("grafana")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "grafana", claims.ClientName)
	assert.Equal(t, "grafana", claims.Subject)
}

func TestAuthService_RejectsBadTokens(t *testing.T) {
	auth, err := NewAuthService(testSecret, time.Hour)
	require.NoError(t, err)
	other, err := NewAuthService(strings.Repeat("z", 32), time.Hour)
	require.NoError(t, err)

	foreign, _, err := other.GenerateToken("grafana")
	require.NoError(t, err)
	_, err = auth.ValidateToken(foreign)
	assert.Error(t, err, "signed with another secret")

	_, err = auth.ValidateToken("not.a.token")
	assert.Error(t, err)

	_, _, err = auth.GenerateToken("")
	assert.Error(t, err)
}

func TestAuthService_RejectsExpiredToken(t *testing.T) {
	auth, err := NewAuthService(testSecret, time.Minute)
	require.NoError(t, err)
	clock := newFakeClock()
	auth.now = clock.Now

	token, _, err := auth.GenerateToken("grafana")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = auth.ValidateToken(token)
	assert.Error(t, err)
}
