package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// TokenStore persists OAuth2 tokens across process restarts.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Load returns ErrNotAuthorized when no token is stored.
type TokenStore interface {
	// Load returns the stored token, or ErrNotAuthorized if none exists.
	Load() (*oauth2.Token, error)

	// Save persists the token, replacing any previous one.
	Save(token *oauth2.Token) error

	// Clear removes the stored token. Clearing an empty store is not an error.
	Clear() error
}

// FileTokenStore stores the token as JSON in a single file.
//
// The file is written with 0600 permissions since it contains the refresh
// token.
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

// NewFileTokenStore creates a file-backed token store at the given path.
func NewFileTokenStore(path string) (*FileTokenStore, error) {
	if path == "" {
		return nil, errors.New("auth: token file path is required")
	}
	return &FileTokenStore{path: path}, nil
}

// Load reads the token from disk.
func (s *FileTokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotAuthorized
		}
		return nil, fmt.Errorf("auth: failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("auth: failed to parse token file: %w", err)
	}
	return &token, nil
}

// Save writes the token to disk atomically via a temp file rename.
func (s *FileTokenStore) Save(token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: failed to encode token: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("auth: failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("auth: failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("auth: failed to write token file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("auth: failed to set token file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("auth: failed to close token file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("auth: failed to replace token file: %w", err)
	}
	return nil
}

// Clear removes the token file.
func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("auth: failed to remove token file: %w", err)
	}
	return nil
}

// MemoryTokenStore keeps the token in memory. Intended for tests.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token *oauth2.Token
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Load returns the stored token.
func (s *MemoryTokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil, ErrNotAuthorized
	}
	copied := *s.token
	return &copied, nil
}

// Save stores the token.
func (s *MemoryTokenStore) Save(token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *token
	s.token = &copied
	return nil
}

// Clear removes the token.
func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	return nil
}

var (
	_ TokenStore = (*FileTokenStore)(nil)
	_ TokenStore = (*MemoryTokenStore)(nil)
)
