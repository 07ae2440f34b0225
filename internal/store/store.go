// Package store keeps credentials, the request budget and room settings in
// a YAML file so they survive restarts.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Agrid-Dev/tadox/internal/tado"
)

type State struct {
	HomeID   int    `yaml:"home_id,omitempty"`
	HomeName string `yaml:"home_name,omitempty"`

	AccessToken  string    `yaml:"access_token,omitempty"`
	RefreshToken string    `yaml:"refresh_token,omitempty"`
	TokenExpiry  time.Time `yaml:"token_expiry,omitempty"`

	APICallsToday int       `yaml:"api_calls_today"`
	APIResetTime  time.Time `yaml:"api_reset_time,omitempty"`
	HasAutoAssist bool      `yaml:"has_auto_assist"`

	RoomDefaults map[int]RoomDefaults `yaml:"room_defaults,omitempty"`
}

type RoomDefaults struct {
	Termination     string `yaml:"termination"`
	DurationMinutes int    `yaml:"duration_minutes"`
}

func (s State) ControlDefaults() map[int]tado.RoomControlDefaults {
	out := make(map[int]tado.RoomControlDefaults, len(s.RoomDefaults))
	for id, d := range s.RoomDefaults {
		out[id] = tado.RoomControlDefaults{Termination: tado.Termination(d.Termination), DurationMinutes: d.DurationMinutes}
	}
	return out
}

func (s *State) SetControlDefaults(m map[int]tado.RoomControlDefaults) {
	s.RoomDefaults = make(map[int]RoomDefaults, len(m))
	for id, d := range m {
		s.RoomDefaults[id] = RoomDefaults{Termination: string(d.Termination), DurationMinutes: d.DurationMinutes}
	}
}

// Store is a YAML state file. Writes replace the file atomically.
type Store struct {
	path string

	mu sync.Mutex
	st State
}

// Open loads path. A missing file yields an empty state.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: path is required")
	}
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.st); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// Update applies fn and writes the result. The in-memory state is left
// unchanged when the write fails.
func (s *Store) Update(fn func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.st
	if s.st.RoomDefaults != nil {
		next.RoomDefaults = make(map[int]RoomDefaults, len(s.st.RoomDefaults))
		for k, v := range s.st.RoomDefaults {
			next.RoomDefaults[k] = v
		}
	}
	fn(&next)

	if err := writeAtomic(s.path, next); err != nil {
		return err
	}
	s.st = next
	return nil
}

func writeAtomic(path string, st State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
