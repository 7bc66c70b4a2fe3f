package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateFile caches expensive environment probes (converter binary discovery)
// between runs so every invocation doesn't re-scan the filesystem.
type StateFile struct {
	PandocPath       string `json:"pandoc_path,omitempty"`
	LibreOfficePath  string `json:"libreoffice_path,omitempty"`
	PandocAvailable  bool   `json:"pandoc_available"`
	SofficeAvailable bool   `json:"soffice_available"`
	LastChecked      int64  `json:"last_checked,omitempty"` // Unix timestamp

	mu sync.RWMutex `json:"-"`
}

var (
	globalState *StateFile
	stateOnce   sync.Once
)

// StateMaxAge is how long cached binary detection results remain valid.
const StateMaxAge = 24 * time.Hour

// GetGlobalState returns the singleton global state
func GetGlobalState() *StateFile {
	stateOnce.Do(func() {
		globalState = loadGlobalState()
	})
	return globalState
}

// loadGlobalState loads the global state from disk
func loadGlobalState() *StateFile {
	state := &StateFile{}

	statePath := getStatePath()
	if data, err := os.ReadFile(statePath); err == nil {
		// Ignore JSON parsing errors and use defaults
		_ = json.Unmarshal(data, state)
	}

	return state
}

// Save persists the global state to disk
func (s *StateFile) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	statePath := getStatePath()

	if err := os.MkdirAll(filepath.Dir(statePath), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(statePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// IsStale reports whether the cached detection results should be re-probed.
func (s *StateFile) IsStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.LastChecked == 0 {
		return true
	}
	return time.Since(time.Unix(s.LastChecked, 0)) > StateMaxAge
}

// GetPandocPath returns the cached pandoc path, if any.
func (s *StateFile) GetPandocPath() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.PandocPath, s.PandocAvailable
}

// GetLibreOfficePath returns the cached LibreOffice path, if any.
func (s *StateFile) GetLibreOfficePath() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LibreOfficePath, s.SofficeAvailable
}

// SetConverterPaths records the results of converter binary discovery.
func (s *StateFile) SetConverterPaths(pandocPath, sofficePath string) {
	s.mu.Lock()
	s.PandocPath = pandocPath
	s.PandocAvailable = pandocPath != ""
	s.LibreOfficePath = sofficePath
	s.SofficeAvailable = sofficePath != ""
	s.LastChecked = time.Now().Unix()
	s.mu.Unlock()
}

// getStatePath returns the path to the state file
func getStatePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "docsmith-state.json")
	}
	return filepath.Join(homeDir, ".docsmith", "state.json")
}
