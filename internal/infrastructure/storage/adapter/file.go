package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go-vitalchat/internal/infrastructure/storage/port"
)

// FileStore persists state as a single JSON document on disk, so tokens
// and the serialized user record survive process restarts. Every write
// rewrites the whole file; the document is small by construction.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// NewFileStore loads (or creates) the state file at path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("storage: state file path is required")
	}
	s := &FileStore{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("storage: read state file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.values); err != nil {
			return nil, fmt.Errorf("storage: parse state file: %w", err)
		}
	}
	return s, nil
}

// NewFileStoreFromEnv builds a FileStore from VITALCHAT_STATE_FILE,
// defaulting to .vitalchat/state.json under the user home directory.
func NewFileStoreFromEnv() (*FileStore, error) {
	path := os.Getenv("VITALCHAT_STATE_FILE")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: resolve home dir: %w", err)
		}
		path = filepath.Join(home, ".vitalchat", "state.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("storage: create state dir: %w", err)
	}
	return NewFileStore(path)
}

var _ port.Store = (*FileStore)(nil)

func (s *FileStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", port.ErrMiss
	}
	return v, nil
}

func (s *FileStore) Set(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.flushLocked()
}

func (s *FileStore) Del(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, k := range keys {
		if _, ok := s.values[k]; ok {
			delete(s.values, k)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.flushLocked()
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) flushLocked() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("storage: write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("storage: replace state file: %w", err)
	}
	return nil
}
