package tokenstore

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/google/renameio/v2"
	"golang.org/x/oauth2"
)

type fileStore struct {
	// mu serializes writers, readers see either the old or the new file
	// as renameio replaces it atomically.
	mu   sync.Mutex
	path string
}

// NewFileStore returns the store persisting the token to a JSON file.
func NewFileStore(path string) Store {
	return &fileStore{path: path}
}

func (s *fileStore) Load(_ context.Context) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithStack(ErrNotFound)
		}
		return nil, errors.Wrap(err, "failed to read tokens")
	}

	r := new(record)
	if err = json.Unmarshal(data, r); err != nil {
		return nil, errors.Wrap(err, "failed to parse tokens")
	}
	if r.AccessToken == "" && r.RefreshToken == "" {
		return nil, errors.WithStack(ErrNotFound)
	}
	return r.token(), nil
}

func (s *fileStore) Save(ctx context.Context, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(toRecord(tok, time.Now()), "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = renameio.WriteFile(s.path, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to save tokens")
	}

	logger.ContextKV(ctx, xlog.DEBUG, "status", "saved", "path", s.path)
	return nil
}

func (s *fileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to clear tokens")
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "cleared", "path", s.path)
	return nil
}
