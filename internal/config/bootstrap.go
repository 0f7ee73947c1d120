package config

import (
	"context"
	"fmt"
)

// Bootstrap returns the stored configuration, first saving Default() when
// the store is empty. The result is validated.
func Bootstrap(ctx context.Context, store Store) (*Config, error) {
	cfg, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		cfg = Default()
		if err := store.Save(ctx, cfg); err != nil {
			return nil, fmt.Errorf("save default config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
