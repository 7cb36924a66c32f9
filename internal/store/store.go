package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Store persists per-device bridge state: the fixed notification IDs
// currently on screen and the stored preferences. Callers mutate it only
// after the corresponding device call succeeded, so the ID list tracks what
// can still be cleared.
type Store struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	devices map[string]*deviceState
}

type deviceState struct {
	FixedIDs    []string          `json:"fixed_ids"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

type fileState struct {
	Devices map[string]*deviceState `json:"devices"`
}

// New creates a store backed by the JSON file at path. Call Load before use.
func New(path string, logger *zap.Logger) *Store {
	return &Store{
		path:    path,
		logger:  logger,
		devices: make(map[string]*deviceState),
	}
}

// Load reads the state file. A missing file is an empty store, not an
// error.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Info("No saved state, starting empty", zap.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading state file: %w", err)
	}

	var file fileState
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing state file %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if file.Devices != nil {
		s.devices = file.Devices
	}

	s.logger.Info("State loaded", zap.String("path", s.path), zap.Int("devices", len(s.devices)))
	return nil
}

// FixedIDs returns the fixed notification IDs recorded for a device, in
// creation order.
func (s *Store) FixedIDs(deviceKey string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.devices[deviceKey]
	if !ok {
		return nil
	}
	return append([]string(nil), state.FixedIDs...)
}

// AddFixedID records a fixed notification as displayed. Adding an ID that
// is already present changes nothing.
func (s *Store) AddFixedID(deviceKey, id string) error {
	if id == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.deviceLocked(deviceKey)
	for _, existing := range state.FixedIDs {
		if existing == id {
			return nil
		}
	}
	state.FixedIDs = append(state.FixedIDs, id)

	return s.saveLocked()
}

// RemoveFixedID records a fixed notification as cleared. Removing an ID
// that is not present changes nothing.
func (s *Store) RemoveFixedID(deviceKey, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.devices[deviceKey]
	if !ok {
		return nil
	}

	for i, existing := range state.FixedIDs {
		if existing == id {
			state.FixedIDs = append(state.FixedIDs[:i], state.FixedIDs[i+1:]...)
			return s.saveLocked()
		}
	}
	return nil
}

// Preference returns a stored preference value, or "" when unset.
func (s *Store) Preference(deviceKey, name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.devices[deviceKey]
	if !ok {
		return ""
	}
	return state.Preferences[name]
}

// SetPreference stores a preference value for a device.
func (s *Store) SetPreference(deviceKey, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.deviceLocked(deviceKey)
	if state.Preferences == nil {
		state.Preferences = make(map[string]string)
	}
	if state.Preferences[name] == value {
		return nil
	}
	state.Preferences[name] = value

	return s.saveLocked()
}

// Preferences returns a copy of all stored preferences for a device.
func (s *Store) Preferences(deviceKey string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs := make(map[string]string)
	if state, ok := s.devices[deviceKey]; ok {
		for name, value := range state.Preferences {
			prefs[name] = value
		}
	}
	return prefs
}

func (s *Store) deviceLocked(deviceKey string) *deviceState {
	state, ok := s.devices[deviceKey]
	if !ok {
		state = &deviceState{}
		s.devices[deviceKey] = state
	}
	return state
}

// saveLocked writes the state file. The caller holds the write lock.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(fileState{Devices: s.devices}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	// Write-then-rename so a crash mid-write cannot corrupt the file
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}

	return nil
}
