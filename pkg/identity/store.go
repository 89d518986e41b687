package identity

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Store persists the single session identifier across restarts, the Go stand-in
// for the browser's one localStorage key. Load returns "" when nothing is stored.
type Store interface {
	Load() (string, error)
	Save(sessionID string) error
}

// FileStore keeps the identifier in a plain file.
type FileStore struct {
	path string
}

var _ Store = &FileStore{}

func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("identity store: empty path")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Load() (string, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrap(err, "identity store: read")
	}
	return strings.TrimSpace(string(b)), nil
}

func (s *FileStore) Save(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("identity store: refusing to save empty session id")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "identity store: mkdir")
	}
	if err := os.WriteFile(s.path, []byte(sessionID+"\n"), 0o644); err != nil {
		return errors.Wrap(err, "identity store: write")
	}
	return nil
}

// MemStore is an in-memory Store for tests and throwaway sessions.
type MemStore struct {
	mu    sync.Mutex
	value string
	Saves int
}

var _ Store = &MemStore{}

func (s *MemStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

func (s *MemStore) Save(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = sessionID
	s.Saves++
	return nil
}
