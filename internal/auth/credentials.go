package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials holds the current token pair. Expiry lives inside the access
// token's claims; nothing here is trusted beyond what the server signed.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Store handles secure persistence of credentials
type Store interface {
	Load() (*Credentials, error)
	Save(creds *Credentials) error
	Clear() error
}

// TokenExpiry decodes the exp claim from a JWT without verifying the
// signature. The client only needs the timestamp; validation is the
// server's job.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode token claims: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// TokenExpired reports whether the token is missing, undecodable, or past
// its expiry.
func TokenExpired(token string) bool {
	return TokenExpiresWithin(token, 0)
}

// TokenExpiresWithin reports whether the token expires within the given
// buffer. An unparsable token counts as expired.
func TokenExpiresWithin(token string, buffer time.Duration) bool {
	if token == "" {
		return true
	}
	expiry, err := TokenExpiry(token)
	if err != nil {
		return true
	}
	return time.Now().Add(buffer).After(expiry)
}

// FileStore implements Store using a JSON file with restricted permissions.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed credential store at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads credentials from disk. A missing file yields (nil, nil).
func (s *FileStore) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if creds.AccessToken == "" {
		return nil, nil
	}
	return &creds, nil
}

// Save writes credentials to disk with 0600 permissions
func (s *FileStore) Save(creds *Credentials) error {
	if creds == nil {
		return fmt.Errorf("credentials are required")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	return os.WriteFile(s.path, data, 0600)
}

// Clear removes stored credentials. Missing file is not an error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}
