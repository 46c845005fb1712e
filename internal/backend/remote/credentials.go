package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const credFileName = "credentials.json"

// storedCredentials is the on-disk session, written after a successful
// sign-in and removed on sign-out.
type storedCredentials struct {
	Token     string     `json:"token"`
	Email     string     `json:"email,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// DefaultDir returns the per-user state directory, ~/.trolley.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, ".trolley"), nil
}

func credFilePath(dir string) string {
	return filepath.Join(dir, credFileName)
}

// loadToken resolves the bearer token for dir. The TROLLEY_TOKEN
// environment variable wins over the credentials file; pinned tokens are
// never written back or deleted.
func loadToken(dir string) (token string, pinned bool, err error) {
	env := strings.TrimSpace(os.Getenv("TROLLEY_TOKEN"))
	if env != "" {
		return stripBearer(env), true, nil
	}

	b, err := os.ReadFile(credFilePath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil // signed out
		}
		return "", false, fmt.Errorf("read credentials: %w", err)
	}
	var sc storedCredentials
	if err := json.Unmarshal(b, &sc); err != nil {
		return "", false, fmt.Errorf("parse credentials: %w", err)
	}
	return stripBearer(sc.Token), false, nil
}

func saveToken(dir, token, email string, expires *time.Time) error {
	token = stripBearer(strings.TrimSpace(token))
	if token == "" {
		return fmt.Errorf("empty token")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	sc := storedCredentials{
		Token:     token,
		Email:     email,
		CreatedAt: time.Now(),
		ExpiresAt: expires,
	}
	b, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	// Owner-only: the file holds a live bearer token.
	if err := os.WriteFile(credFilePath(dir), b, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

func deleteToken(dir string) error {
	if err := os.Remove(credFilePath(dir)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

func stripBearer(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return strings.TrimSpace(s[7:])
	}
	return s
}
