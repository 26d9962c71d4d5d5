package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalState is the durable client-local session record: the remembered
// display name and last open room. It survives restarts of the client so a
// reconnect can resume both, and is cleared on logout. The server stays
// authoritative; these values are only a good-faith starting point.
type LocalState struct {
	path string

	DisplayName string `yaml:"displayname"`
	Room        string `yaml:"room"`
}

// DefaultStatePath returns the session file location under the user config dir.
func DefaultStatePath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "izba", "session.yaml"), nil
}

// LoadLocalState reads the session file at path. A missing file yields an
// empty state, not an error. An empty path keeps the state memory-only.
func LoadLocalState(path string) (*LocalState, error) {
	state := &LocalState{path: path}
	if path == "" {
		return state, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if err := yaml.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("unmarshal session file: %w", err)
	}
	return state, nil
}

// SetName persists the remembered display name.
func (s *LocalState) SetName(name string) error {
	s.DisplayName = name
	return s.save()
}

// SetRoom persists the remembered room. Empty clears the reference.
func (s *LocalState) SetRoom(room string) error {
	s.Room = room
	return s.save()
}

// Clear wipes both values, returning the client to the logged-out baseline.
func (s *LocalState) Clear() error {
	s.DisplayName = ""
	s.Room = ""
	return s.save()
}

func (s *LocalState) save() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
