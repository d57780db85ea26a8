package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

const TokenFile = ".outlook_calendar.token"

// TokenPersister is handed to the Client and called with every new token
// before the access token is given to callers.
type TokenPersister interface {
	Save(ctx context.Context, token Token) error
}

type TokenStore interface {
	TokenPersister
	// Load returns nil without an error when no token has been stored yet.
	Load(ctx context.Context) (*Token, error)
}

// FileTokenStore keeps the token as a single JSON object on disk.
type FileTokenStore struct {
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Path() string {
	return s.path
}

func (s *FileTokenStore) Load(_ context.Context) (*Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to read token file: %w", err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		log.Warnf("ignoring malformed token file %s: %v", s.path, err)
		return nil, nil
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		log.Warnf("ignoring token file %s without access or refresh token", s.path)
		return nil, nil
	}
	return &token, nil
}

// Save replaces the token file atomically: the record is written to a temp
// file in the same directory which is then renamed over the old one.
func (s *FileTokenStore) Save(_ context.Context, token Token) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("unable to create token directory: %w", err)
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("unable to marshal token: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".outlook-calendar-token-*.tmp")
	if err != nil {
		return fmt.Errorf("unable to create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to write token: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to set token file permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to sync token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to close token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("unable to replace token file: %w", err)
	}
	log.Debugf("Stored OAuth token in %s", s.path)
	return nil
}
