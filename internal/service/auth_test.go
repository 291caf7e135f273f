package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tailor-checkout/config"
)

func newAuth(t *testing.T, ttl time.Duration) *AuthService {
	t.Helper()
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	return NewAuthService(config.AuthConfig{
		JWTSecret:         "jwt-secret",
		TokenTTL:          ttl,
		AdminUser:         "ops",
		AdminPasswordHash: hash,
	})
}

func TestLoginAndValidate(t *testing.T) {
	s := newAuth(t, time.Hour)

	token, exp, err := s.Login("ops", "s3cret")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	sub, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", sub)
}

func TestLoginRejects(t *testing.T) {
	s := newAuth(t, time.Hour)

	_, _, err := s.Login("ops", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = s.Login("someone", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = NewAuthService(config.AuthConfig{}).Login("ops", "s3cret")
	assert.ErrorIs(t, err, ErrAuthDisabled)
}

func TestValidateTokenFailures(t *testing.T) {
	s := newAuth(t, time.Hour)
	s.ttl = -time.Minute

	expired, _, err := s.Login("ops", "s3cret")
	require.NoError(t, err)
	_, err = s.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	other := newAuth(t, time.Hour)
	other.secret = []byte("other")
	token, _, err := other.Login("ops", "s3cret")
	require.NoError(t, err)
	_, err = newAuth(t, time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
