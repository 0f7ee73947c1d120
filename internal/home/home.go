// Package home locates the sieve working directory.
//
//	<root>/config.json   configuration (config/file)
//	<root>/sieve.db      bbolt database: edges, text terms, checkpoints
//
// The root is, in order: an explicit path, $SIEVE_HOME, or "sieve" under
// os.UserConfigDir.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvVar overrides the default root.
const EnvVar = "SIEVE_HOME"

const (
	configFile   = "config.json"
	databaseFile = "sieve.db"
)

// Dir is a resolved home directory. It is not created until EnsureExists.
type Dir struct {
	root string
}

func New(root string) Dir {
	return Dir{root: filepath.Clean(root)}
}

// Default returns $SIEVE_HOME if set, else the per-user config location.
func Default() (Dir, error) {
	if root := os.Getenv(EnvVar); root != "" {
		return New(root), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("no %s and no user config directory: %w", EnvVar, err)
	}
	return New(filepath.Join(base, "sieve")), nil
}

// Resolve prefers an explicit root (the --home flag) over Default.
func Resolve(root string) (Dir, error) {
	if root == "" {
		return Default()
	}
	return New(root), nil
}

func (d Dir) Root() string         { return d.root }
func (d Dir) ConfigPath() string   { return filepath.Join(d.root, configFile) }
func (d Dir) DatabasePath() string { return filepath.Join(d.root, databaseFile) }

// EnsureExists creates the root and its parents.
func (d Dir) EnsureExists() error {
	if d.root == "" || d.root == "." {
		return fmt.Errorf("home directory not set")
	}
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	return nil
}
