// Package identity persists the visitor's device fingerprint and last session
// id between runs of the visitor flow.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const (
	KeyFingerprint = "vs_fingerprint"
	KeySessionID   = "vs_session_id"
)

// Store is a small string key-value file. It is read on first access and
// rewritten on every mutation.
type Store struct {
	mu     sync.Mutex
	path   string
	values map[string]string
	loaded bool
	newID  func() string
}

func NewStore(path string) *Store {
	return &Store{path: path, newID: uuid.NewString}
}

// Fingerprint returns the persisted fingerprint, generating and saving a
// random one the first time.
func (s *Store) Fingerprint() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return "", err
	}
	if fp := s.values[KeyFingerprint]; fp != "" {
		return fp, nil
	}
	fp := s.newID()
	s.values[KeyFingerprint] = fp
	if err := s.save(); err != nil {
		return "", err
	}
	return fp, nil
}

func (s *Store) SessionID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return "", err
	}
	return s.values[KeySessionID], nil
}

func (s *Store) SetSessionID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	if s.values[KeySessionID] == id {
		return nil
	}
	s.values[KeySessionID] = id
	return s.save()
}

func (s *Store) load() error {
	if s.loaded {
		return nil
	}
	s.values = map[string]string{}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.loaded = true
			return nil
		}
		return err
	}
	if err := json.Unmarshal(b, &s.values); err != nil {
		return fmt.Errorf("read identity %s: %w", s.path, err)
	}
	s.loaded = true
	return nil
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
