package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/models"
)

var testSecret = []byte("test-secret-key")

func signToken(t *testing.T, claims jwt.MapClaims, secret []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	tokenStr := signToken(t, jwt.MapClaims{
		"user_id": "user-1",
		"name":    "Alice",
		"role":    "editor",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	ident, err := v.Verify(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "user-1", ident.UserID)
	assert.Equal(t, "Alice", ident.Name)
	assert.Equal(t, models.RoleEditor, ident.Role)
}

func TestVerifyDefaultsMissingClaims(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	tokenStr := signToken(t, jwt.MapClaims{
		"user_id": "user-2",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	ident, err := v.Verify(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "user-2", ident.Name, "name falls back to the user id")
	assert.Equal(t, models.RoleViewer, ident.Role, "role defaults to viewer")
}

func TestVerifyUnknownRoleFallsBackToViewer(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	tokenStr := signToken(t, jwt.MapClaims{
		"user_id": "user-3",
		"role":    "superuser",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	ident, err := v.Verify(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, ident.Role)
}

func TestVerifyExpiredToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	tokenStr := signToken(t, jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	}, testSecret)

	_, err := v.Verify(tokenStr)
	assert.Error(t, err)
}

func TestVerifyWrongSecret(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	tokenStr := signToken(t, jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, []byte("some-other-secret"))

	_, err := v.Verify(tokenStr)
	assert.Error(t, err)
}

func TestVerifyMissingUserID(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	tokenStr := signToken(t, jwt.MapClaims{
		"name": "Nobody",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	_, err := v.Verify(tokenStr)
	assert.Error(t, err)
}

func TestVerifyGarbageToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	_, err := v.Verify("not-a-jwt")
	assert.Error(t, err)
}
