package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_GenerateAndVerify(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour)

	token, err := manager.Generate("p1", "tony")
	require.NoError(t, err)

	claims, err := manager.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "p1", claims.UserID)
	assert.Equal(t, "tony", claims.Handle)
	assert.Equal(t, "p1", claims.Subject)
}

func TestJWTManager_WrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret", time.Hour).Generate("p1", "")
	require.NoError(t, err)

	_, err = NewJWTManager("other", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTManager_Expired(t *testing.T) {
	manager := NewJWTManager("secret", time.Minute)
	issued := time.Now()
	manager.now = func() time.Time { return issued }

	token, err := manager.Generate("p1", "")
	require.NoError(t, err)

	manager.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = manager.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTManager_Garbage(t *testing.T) {
	_, err := NewJWTManager("secret", time.Hour).Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
