package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrUnsupportedVersion is returned for state written by a newer release.
var ErrUnsupportedVersion = errors.New("unsupported state file version")

// NodeState is what a node remembers between runs.
type NodeState struct {
	Version int       `yaml:"version"`
	SavedAt time.Time `yaml:"saved_at"`

	DeviceName string `yaml:"device_name,omitempty"`

	// DeviceAddress is the last address the node held without conflict.
	// Zero means none.
	DeviceAddress uint16    `yaml:"device_address,omitempty"`
	SerialNumber  string    `yaml:"serial_number,omitempty"`
	ClaimedAt     time.Time `yaml:"claimed_at,omitempty"`
}

// AddressFor returns the remembered address if it was claimed under serial.
// An address claimed by another identity is not reused.
func (s *NodeState) AddressFor(serial string) (uint16, bool) {
	if s == nil || s.SerialNumber != serial || !wire.ValidDeviceAddress(s.DeviceAddress) {
		return 0, false
	}
	return s.DeviceAddress, true
}

// NameFor returns the remembered device name if it was saved under serial.
func (s *NodeState) NameFor(serial string) (string, bool) {
	if s == nil || s.SerialNumber != serial || s.DeviceName == "" {
		return "", false
	}
	return s.DeviceName, true
}

// NodeStateStore keeps a NodeState in a YAML file. Files written as JSON
// load as well.
type NodeStateStore struct {
	mu   sync.Mutex
	path string
}

// NewNodeStateStore returns a store for path. Nothing is read until Load.
func NewNodeStateStore(path string) *NodeStateStore {
	return &NodeStateStore{path: path}
}

// Path returns the state file path.
func (s *NodeStateStore) Path() string {
	return s.path
}

// Save writes state, replacing the file atomically. Version and SavedAt
// are filled in.
func (s *NodeStateStore) Save(state *NodeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode node state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// Load reads the state file. A missing file yields nil, nil.
func (s *NodeStateStore) Load() (*NodeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state NodeState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, state.Version)
	}
	return &state, nil
}

// Clear removes the state file. A missing file is not an error.
func (s *NodeStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
