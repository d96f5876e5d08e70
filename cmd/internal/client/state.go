package client

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TabState is the tab-scoped persisted credential state: enough for a tab
// to resume its session after a reload. The access credential is memory
// only and never lands here.
type TabState struct {
	SessionID      string    `json:"session_id"`
	RenewalSecret  string    `json:"renewal_secret"`
	RenewalExp     time.Time `json:"renewal_exp"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// StateStore persists TabState across reloads of one tab.
type StateStore interface {
	// Load returns the persisted state and whether any state existed.
	Load() (TabState, bool, error)
	Save(TabState) error
	Clear() error
}

// MemoryStateStore is a StateStore for tests and ephemeral processes.
type MemoryStateStore struct {
	mu    sync.Mutex
	state TabState
	set   bool
}

// NewMemoryStateStore constructs an empty MemoryStateStore.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (s *MemoryStateStore) Load() (TabState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.set, nil
}

func (s *MemoryStateStore) Save(state TabState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.set = true
	return nil
}

func (s *MemoryStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = TabState{}
	s.set = false
	return nil
}

// FileStateStore persists TabState as a mode-0600 JSON file. One file per
// tab; the path carries the tab scoping.
type FileStateStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStateStore constructs a FileStateStore at path.
func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{path: path}
}

func (s *FileStateStore) Load() (TabState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TabState{}, false, nil
		}
		return TabState{}, false, err
	}

	var state TabState
	if err := json.Unmarshal(b, &state); err != nil {
		return TabState{}, false, err
	}
	return state, true, nil
}

func (s *FileStateStore) Save(state TabState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(state)
	if err != nil {
		return err
	}

	// Write-then-rename so a crash never leaves a torn state file.
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
