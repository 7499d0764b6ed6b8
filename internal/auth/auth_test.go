package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T) *Keys {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return NewKeysFromRSA(privateKey)
}

func TestTokenRoundTrip(t *testing.T) {
	keys := testKeys(t)

	token, err := keys.GenerateToken(42, RoleCustomer, time.Hour)
	require.NoError(t, err)

	claims, err := keys.ValidateToken(token)
	require.NoError(t, err)

	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.Equal(t, RoleCustomer, claims.Role)
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	token, err := testKeys(t).GenerateToken(1, RoleAdmin, time.Hour)
	require.NoError(t, err)

	_, err = testKeys(t).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	keys := testKeys(t)
	token, err := keys.GenerateToken(1, RoleCustomer, -time.Minute)
	require.NoError(t, err)

	_, err = keys.ValidateToken(token)
	assert.Error(t, err)
}

func TestIsPrivileged(t *testing.T) {
	assert.False(t, IsPrivileged(RoleCustomer))
	assert.True(t, IsPrivileged(RoleSeller))
	assert.True(t, IsPrivileged(RoleAdmin))
	assert.False(t, IsPrivileged(""))
}
