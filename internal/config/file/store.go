// Package file provides a file-based config.Store.
//
// The file holds a versioned JSON envelope:
//
//	{"version": 1, "config": { ... }}
//
// Save refuses configurations that fail Validate and replaces the file
// atomically (temp file, read-back, rename).
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"sieve/internal/config"
)

const currentVersion = 1

type envelope struct {
	Version int            `json:"version"`
	Config  *config.Config `json:"config"`
}

// Store keeps the configuration in one JSON file.
type Store struct {
	path string
	mu   sync.Mutex
}

var _ config.Store = (*Store)(nil)

// NewStore returns a store for the file at path. The file need not exist.
func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load reads the configuration. A missing file, or an envelope without a
// config, loads as nil.
func (s *Store) Load(_ context.Context) (*config.Config, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	env, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", s.path, err)
	}
	return env.Config, nil
}

// decode parses an envelope strictly: unknown keys are errors, so a typo in
// a hand-edited file is not silently ignored.
func decode(data []byte) (envelope, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return envelope{}, err
	}
	switch {
	case env.Version == 0:
		return envelope{}, fmt.Errorf("unversioned config; expected {\"version\": %d, \"config\": {...}}", currentVersion)
	case env.Version > currentVersion:
		return envelope{}, fmt.Errorf("config version %d is newer than supported version %d", env.Version, currentVersion)
	}
	return env, nil
}

// Save validates cfg and replaces the file with it.
func (s *Store) Save(_ context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}
	data, err := json.MarshalIndent(envelope{Version: currentVersion, Config: cfg}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replace(append(data, '\n'))
}

func (s *Store) replace(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(step string, err error) error {
		os.Remove(tmpPath)
		return fmt.Errorf("%s: %w", step, err)
	}

	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fail("write temp file", err)
	}
	written, err := os.ReadFile(tmpPath)
	if err != nil {
		return fail("read back temp file", err)
	}
	if _, err := decode(written); err != nil {
		return fail("read back temp file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fail("rename config file", err)
	}
	return nil
}
