package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", 24)
	userID := uuid.New()

	token, err := svc.Generate(userID, "ana", "https://example.com/ana.png", "member")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "ana", claims.Name)
	assert.Equal(t, "https://example.com/ana.png", claims.Avatar)
	assert.Equal(t, "member", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a", 24).Generate(uuid.New(), "ana", "", "member")
	require.NoError(t, err)

	_, err = NewJWTService("secret-b", 24).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	svc := NewJWTService("test-secret", -1)
	token, err := svc.Generate(uuid.New(), "ana", "", "member")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRejectsGarbage(t *testing.T) {
	svc := NewJWTService("test-secret", 24)
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		_, err := svc.Validate(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestJWTRejectsTamperedToken(t *testing.T) {
	svc := NewJWTService("test-secret", 24)
	token, err := svc.Generate(uuid.New(), "ana", "", "member")
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"
	_, err = svc.Validate(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
