package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotFound indicates no credentials have been persisted yet.
var ErrNotFound = errors.New("credentials not found")

// Credentials is the token pair issued at login. The login flow itself lives
// outside this library; we only read the pair back and rotate it on refresh.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Empty reports whether no usable access token is present.
func (c Credentials) Empty() bool {
	return c.AccessToken == ""
}

// AccessExpiry returns the exp claim of the access token. The signature is
// not verified; the client never holds the signing secret.
func (c Credentials) AccessExpiry() (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(c.AccessToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("access token has no expiry claim")
	}
	return claims.ExpiresAt.Time, nil
}

// Provider supplies the current credentials and accepts rotated ones. Load is
// synchronous and must be cheap: the connection manager re-reads it on every
// connect attempt.
type Provider interface {
	Load() (Credentials, error)
	Store(Credentials) error
}

// FileStore persists credentials as a JSON file, the desktop analog of the
// browser session cookie.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed credential store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted credentials.
func (s *FileStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, ErrNotFound
		}
		return Credentials{}, fmt.Errorf("failed to read credential file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("failed to decode credential file: %w", err)
	}
	return creds, nil
}

// Store writes the credentials back, replacing the previous pair.
func (s *FileStore) Store(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	// Write-then-rename so a crash mid-write cannot corrupt the pair the
	// connection manager re-reads on every reconnect.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

// Clear removes the persisted credentials (logout).
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}

// Static holds fixed in-memory credentials, mainly for tests.
type Static struct {
	mu    sync.Mutex
	creds Credentials
}

// NewStatic creates an in-memory credential store.
func NewStatic(creds Credentials) *Static {
	return &Static{creds: creds}
}

// Load returns the current credentials.
func (s *Static) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds.Empty() {
		return Credentials{}, ErrNotFound
	}
	return s.creds, nil
}

// Store replaces the current credentials.
func (s *Static) Store(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	return nil
}
