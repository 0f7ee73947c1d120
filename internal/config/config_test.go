package config

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"sieve/internal/query"
	"sieve/internal/store"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
}

func TestDefaultMatchesCompilerDefaults(t *testing.T) {
	if got, want := Default().Limits(), query.DefaultLimits(); !reflect.DeepEqual(got, want) {
		t.Errorf("Limits() = %+v, want %+v", got, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"max terms", func(c *Config) { c.MaxQueryTerms = 0 }, "maxQueryTerms"},
		{"prefilter values", func(c *Config) { c.MaxPrefilterValues = -1 }, "maxPrefilterValues"},
		{"base priority", func(c *Config) { c.BasePriority = -5 }, "basePriority"},
		{"skip limit", func(c *Config) { c.DateFilterSkipLimit = -1 }, "dateFilterSkipLimit"},
		{"scan limit", func(c *Config) { c.DateFilterScanLimit = -1 }, "dateFilterScanLimit"},
		{"ranges per unit", func(c *Config) { c.MaxRangesPerUnit = -1 }, "maxRangesPerUnit"},
		{"branches", func(c *Config) { c.MaxBranches = -1 }, "maxBranches"},
		{"excerpt fields", func(c *Config) { c.ExcerptFields = "BODY/x" }, "excerptFields"},
		{"excerpt rate", func(c *Config) { c.ExcerptRatePerSecond = -1 }, "excerptRatePerSecond"},
		{"workers", func(c *Config) { c.EvalWorkers = -1 }, "evalWorkers"},
		{"ttl syntax", func(c *Config) { c.CheckpointTTL = "soon" }, "checkpointTtl"},
		{"ttl sign", func(c *Config) { c.CheckpointTTL = "-1h" }, "checkpointTtl"},
		{"cron", func(c *Config) { c.CheckpointSweepCron = "every now and then" }, "checkpointSweepCron"},
		{"log level", func(c *Config) { c.LogLevel = "chatty" }, "logLevel"},
		{"stage kind", func(c *Config) { c.CustomStages = []StageConfig{{Name: "x"}} }, "customStages[0]"},
		{"stage names", func(c *Config) {
			c.CustomStages = []StageConfig{{Kind: "date-type"}, {Name: "date-type", Kind: "expression"}}
		}, "customStages[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.field+":") {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	cfg := Default()
	cfg.MaxQueryTerms = 0
	cfg.CheckpointTTL = "soon"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, field := range []string{"maxQueryTerms", "checkpointTtl"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestValidateCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"", false},
		{"*/15 * * * *", false},
		{"30 0 * * * *", false},
		{"0 0 * * MON-FRI", false},
		{"* * *", true},
		{"61 * * * *", true},
		{"bogus", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCron(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestLimits(t *testing.T) {
	cfg := Default()
	cfg.DateFilterSkipLimit = 5
	cfg.DateFilterScanLimit = 1000
	cfg.MaxRangesPerUnit = 3
	cfg.CustomStages = []StageConfig{
		{Kind: "date-type", Options: map[string]string{"date_type": "ANY"}},
		{Name: "second", Kind: "expression", Options: map[string]string{"query": "COUNT > 1"}},
	}

	l := cfg.Limits()
	if l.DateFilterSkipLimit != 5 || l.DateFilterScanLimit != 1000 || l.MaxRangesPerUnit != 3 {
		t.Errorf("limits = %+v", l)
	}
	want := []store.Stage{
		{Name: "date-type", Kind: "date-type", Options: map[string]string{"date_type": "ANY"}},
		{Name: "second", Kind: "expression", Options: map[string]string{"query": "COUNT > 1"}},
	}
	if !reflect.DeepEqual(l.CustomStages, want) {
		t.Errorf("custom stages = %+v, want %+v", l.CustomStages, want)
	}

	// The limits own their options.
	l.CustomStages[0].Options["date_type"] = "EVENT"
	if cfg.CustomStages[0].Options["date_type"] != "ANY" {
		t.Error("Limits shares option maps with the config")
	}

	if got := cfg.StageKinds(); !reflect.DeepEqual(got, []string{"date-type", "expression"}) {
		t.Errorf("StageKinds() = %v", got)
	}
}

func TestDerivedSettings(t *testing.T) {
	cfg := Default()
	if got := cfg.CheckpointRetention(); got != 24*time.Hour {
		t.Errorf("CheckpointRetention() = %v, want 24h", got)
	}
	cfg.CheckpointTTL = ""
	if got := cfg.CheckpointRetention(); got != 0 {
		t.Errorf("CheckpointRetention() with no TTL = %v, want 0", got)
	}

	if lim := cfg.ExcerptLimiter(); lim == nil || lim.Limit() != 100 {
		t.Errorf("ExcerptLimiter() = %v, want 100/s", lim)
	}
	cfg.ExcerptRatePerSecond = 0
	if lim := cfg.ExcerptLimiter(); lim != nil {
		t.Errorf("ExcerptLimiter() with rate 0 = %v, want nil", lim)
	}

	cfg.ExcerptFields = "BODY/2"
	fields, err := cfg.Excerpts()
	if err != nil {
		t.Fatal(err)
	}
	if fields["BODY"] != 2 {
		t.Errorf("Excerpts() = %v", fields)
	}
}

func TestClone(t *testing.T) {
	var nilCfg *Config
	if nilCfg.Clone() != nil {
		t.Error("Clone of nil is not nil")
	}
	cfg := Default()
	cfg.CustomStages = []StageConfig{{Kind: "k", Options: map[string]string{"a": "1"}}}
	c := cfg.Clone()
	if !reflect.DeepEqual(c, cfg) {
		t.Fatalf("clone = %+v, want %+v", c, cfg)
	}
	c.CustomStages[0].Options["a"] = "2"
	if cfg.CustomStages[0].Options["a"] != "1" {
		t.Error("clone shares stage options")
	}
}

// fakeStore records saves; load returns loaded.
type fakeStore struct {
	loaded *Config
	saved  []*Config
}

func (f *fakeStore) Load(context.Context) (*Config, error) { return f.loaded, nil }

func (f *fakeStore) Save(_ context.Context, cfg *Config) error {
	f.saved = append(f.saved, cfg.Clone())
	return nil
}

func TestBootstrap(t *testing.T) {
	t.Run("empty store gets defaults", func(t *testing.T) {
		s := &fakeStore{}
		cfg, err := Bootstrap(context.Background(), s)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(cfg, Default()) {
			t.Errorf("cfg = %+v, want defaults", cfg)
		}
		if len(s.saved) != 1 {
			t.Errorf("saved %d times, want 1", len(s.saved))
		}
	})

	t.Run("stored config is kept", func(t *testing.T) {
		stored := Default()
		stored.MaxQueryTerms = 9
		s := &fakeStore{loaded: stored}
		cfg, err := Bootstrap(context.Background(), s)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.MaxQueryTerms != 9 {
			t.Errorf("MaxQueryTerms = %d, want 9", cfg.MaxQueryTerms)
		}
		if len(s.saved) != 0 {
			t.Error("stored config was overwritten")
		}
	})

	t.Run("invalid stored config", func(t *testing.T) {
		stored := Default()
		stored.MaxQueryTerms = 0
		if _, err := Bootstrap(context.Background(), &fakeStore{loaded: stored}); err == nil {
			t.Error("expected an error")
		}
	})
}
