package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, err := TokenExpiry(signedToken(t, exp))
	require.NoError(t, err)
	assert.True(t, got.Equal(exp))
}

func TestTokenExpiryOpaqueToken(t *testing.T) {
	_, err := TokenExpiry("not-a-jwt")
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	assert.True(t, TokenExpired(""))
	assert.True(t, TokenExpired("garbage"))
	assert.True(t, TokenExpired(signedToken(t, time.Now().Add(-time.Minute))))
	assert.False(t, TokenExpired(signedToken(t, time.Now().Add(time.Hour))))
}

func TestTokenExpiresWithin(t *testing.T) {
	token := signedToken(t, time.Now().Add(2*time.Minute))
	assert.True(t, TokenExpiresWithin(token, 5*time.Minute))
	assert.False(t, TokenExpiresWithin(token, time.Minute))
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "credentials.json")
	store := NewFileStore(path)

	// Missing file is not an error
	creds, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, creds)

	want := &Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"}
	require.NoError(t, store.Save(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Clear())
	got, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	// Clearing twice is fine
	require.NoError(t, store.Clear())
}

func TestFileStoreSaveNil(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	assert.Error(t, store.Save(nil))
}
