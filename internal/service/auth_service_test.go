package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sd-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/sd-enrollment-api/pkg/errors"
)

func newTestAuth() *AuthService {
	return NewAuthService(AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "sd-enrollment-api"})
}

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := newTestAuth()

	signed, exp, err := svc.IssueToken("user-1", models.RoleRegistrar, "reg@school.ph", "Reg Istrar")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleRegistrar, claims.Role)
}

func TestAuthServiceRejectsWrongSecret(t *testing.T) {
	other := NewAuthService(AuthConfig{AccessTokenSecret: "other", Issuer: "sd-enrollment-api"})
	signed, _, err := other.IssueToken("user-1", models.RoleAdmin, "", "")
	require.NoError(t, err)

	_, err = newTestAuth().ValidateToken(signed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceRejectsExpiredToken(t *testing.T) {
	svc := newTestAuth()
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	signed, _, err := svc.IssueToken("user-1", models.RoleAdmin, "", "")
	require.NoError(t, err)

	_, err = newTestAuth().ValidateToken(signed)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceRejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, &models.JWTClaims{UserID: "user-1"})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = newTestAuth().ValidateToken(signed)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
