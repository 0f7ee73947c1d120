// Package memory provides an in-memory config.Store, for tests and for
// running without a config file.
package memory

import (
	"context"
	"fmt"
	"sync"

	"sieve/internal/config"
)

// Store holds a private copy of the last saved configuration. Like the file
// store, it refuses to save a configuration that fails Validate.
type Store struct {
	mu  sync.RWMutex
	cfg *config.Config
}

var _ config.Store = (*Store)(nil)

func NewStore() *Store { return &Store{} }

func (s *Store) Load(context.Context) (*config.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone(), nil
}

func (s *Store) Save(_ context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}
	copied := cfg.Clone()
	s.mu.Lock()
	s.cfg = copied
	s.mu.Unlock()
	return nil
}
