package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitryplyaskin/pathwise-backend/internal/config"
)

func newAuthConfig() *config.Config {
	return &config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(newAuthConfig(), nil)
	userID := uuid.New()

	token, err := svc.GenerateToken(userID)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewAuthService(newAuthConfig(), nil)
	token, err := issuer.GenerateToken(uuid.New())
	require.NoError(t, err)

	otherCfg := newAuthConfig()
	otherCfg.JWTSecret = "different-secret"
	verifier := NewAuthService(otherCfg, nil)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	cfg := newAuthConfig()
	cfg.JWTExpiry = -time.Minute
	svc := NewAuthService(cfg, nil)

	token, err := svc.GenerateToken(uuid.New())
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService(newAuthConfig(), nil)
	_, err := svc.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	svc := NewAuthService(newAuthConfig(), nil)

	hash, err := svc.HashPassword("hunter22")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter22")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter23")))
}
