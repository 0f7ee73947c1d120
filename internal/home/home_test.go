package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveOrder(t *testing.T) {
	env := filepath.Join(t.TempDir(), "from-env")
	t.Setenv(EnvVar, env)

	d, err := Resolve("/data/sieve/")
	if err != nil {
		t.Fatal(err)
	}
	if d.Root() != "/data/sieve" {
		t.Errorf("explicit root = %s", d.Root())
	}

	d, err = Resolve("")
	if err != nil {
		t.Fatal(err)
	}
	if d.Root() != env {
		t.Errorf("env root = %s, want %s", d.Root(), env)
	}
}

func TestDefaultUserConfigDir(t *testing.T) {
	t.Setenv(EnvVar, "")
	d, err := Default()
	if err != nil {
		t.Skipf("no user config dir: %v", err)
	}
	if filepath.Base(d.Root()) != "sieve" {
		t.Errorf("root %s does not end in sieve", d.Root())
	}
}

func TestPaths(t *testing.T) {
	d := New("/data")
	if got := d.ConfigPath(); got != filepath.Join("/data", "config.json") {
		t.Errorf("ConfigPath() = %s", got)
	}
	if got := d.DatabasePath(); got != filepath.Join("/data", "sieve.db") {
		t.Errorf("DatabasePath() = %s", got)
	}
}

func TestEnsureExists(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")
	d := New(root)
	for range 2 {
		if err := d.EnsureExists(); err != nil {
			t.Fatalf("EnsureExists: %v", err)
		}
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Fatalf("stat %s: %v", root, err)
	}
	if err := (Dir{}).EnsureExists(); err == nil {
		t.Error("zero Dir: expected error")
	}
}
