// Package config holds the settings of the query stack: compiler limits,
// excerpt extraction, checkpoint retention and custom filter stages.
//
// A Config is loaded once, validated, and then treated as immutable; the
// consumers (compiler, excerpt transform, checkpoint sweeper) receive
// values derived from it, never the Config itself.
//
// Store persists a Config. Implementations only serialize; semantic checks
// are Validate's job.
package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/time/rate"

	"sieve/internal/excerpt"
	"sieve/internal/logging"
	"sieve/internal/query"
	"sieve/internal/store"
)

// Store persists and loads the configuration.
type Store interface {
	// Load reads the configuration. Returns nil if nothing exists
	// (bootstrap signal).
	Load(ctx context.Context) (*Config, error)
	// Save replaces the stored configuration.
	Save(ctx context.Context, cfg *Config) error
}

// Config is the persisted configuration.
type Config struct {
	// MaxQueryTerms rejects queries with more terms than this.
	MaxQueryTerms int `json:"maxQueryTerms"`

	// MaxPrefilterValues disables the prefilter of a query when more
	// fields than this survive pruning. Zero turns prefiltering off.
	MaxPrefilterValues int `json:"maxPrefilterValues"`

	// BasePriority is the priority of the first filter stage.
	BasePriority int `json:"basePriority"`

	// DateFilterSkipLimit and DateFilterScanLimit are passed to the date
	// filter stages. Zero means unlimited.
	DateFilterSkipLimit int   `json:"dateFilterSkipLimit,omitempty"`
	DateFilterScanLimit int64 `json:"dateFilterScanLimit,omitempty"`

	// MaxRangesPerUnit splits plans into units of at most this many ranges.
	// Zero keeps every plan in one unit.
	MaxRangesPerUnit int `json:"maxRangesPerUnit,omitempty"`

	// MaxBranches bounds the disjunctive normal form of a query.
	MaxBranches int `json:"maxBranches,omitempty"`

	// IncludeStats lets statistics edges through by default.
	IncludeStats bool `json:"includeStats,omitempty"`

	// ExcerptFields is "FIELD/window,..."; empty disables excerpts.
	ExcerptFields string `json:"excerptFields,omitempty"`

	// ExcerptRatePerSecond paces the secondary scans of excerpt
	// extraction. Zero means unpaced.
	ExcerptRatePerSecond float64 `json:"excerptRatePerSecond,omitempty"`

	// EvalWorkers bounds the goroutines evaluating records in parallel.
	EvalWorkers int `json:"evalWorkers,omitempty"`

	// CheckpointTTL is how long stored checkpoints are kept, as a Go
	// duration (e.g. "24h").
	CheckpointTTL string `json:"checkpointTtl,omitempty"`

	// CheckpointSweepCron schedules the deletion of expired checkpoints.
	// Supports standard 5-field (minute-level) or 6-field (second-level)
	// expressions.
	CheckpointSweepCron string `json:"checkpointSweepCron,omitempty"`

	// LogLevel is a level specification such as "info,engine=debug".
	LogLevel string `json:"logLevel,omitempty"`

	// CustomStages are appended to every plan after the built-in stages.
	CustomStages []StageConfig `json:"customStages,omitempty"`
}

// StageConfig describes a filter stage added to every plan.
type StageConfig struct {
	// Name defaults to Kind.
	Name string `json:"name,omitempty"`

	// Kind names a registered stage implementation.
	Kind string `json:"kind"`

	// Options are passed to the stage unchanged.
	Options map[string]string `json:"options,omitempty"`
}

// Default returns the configuration used when none is stored.
func Default() *Config {
	limits := query.DefaultLimits()
	return &Config{
		MaxQueryTerms:        limits.MaxQueryTerms,
		MaxPrefilterValues:   limits.MaxPrefilterValues,
		BasePriority:         limits.BasePriority,
		MaxBranches:          limits.MaxBranches,
		ExcerptRatePerSecond: 100,
		EvalWorkers:          4,
		CheckpointTTL:        "24h",
		CheckpointSweepCron:  "*/15 * * * *",
		LogLevel:             "info",
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.CustomStages != nil {
		out.CustomStages = make([]StageConfig, len(c.CustomStages))
		for i, st := range c.CustomStages {
			st.Options = maps.Clone(st.Options)
			out.CustomStages[i] = st
		}
	}
	return &out
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", field, fmt.Sprintf(format, args...)))
	}

	if c.MaxQueryTerms <= 0 {
		bad("maxQueryTerms", "must be positive, got %d", c.MaxQueryTerms)
	}
	if c.MaxPrefilterValues < 0 {
		bad("maxPrefilterValues", "must not be negative, got %d", c.MaxPrefilterValues)
	}
	if c.BasePriority < 0 {
		bad("basePriority", "must not be negative, got %d", c.BasePriority)
	}
	if c.DateFilterSkipLimit < 0 {
		bad("dateFilterSkipLimit", "must not be negative, got %d", c.DateFilterSkipLimit)
	}
	if c.DateFilterScanLimit < 0 {
		bad("dateFilterScanLimit", "must not be negative, got %d", c.DateFilterScanLimit)
	}
	if c.MaxRangesPerUnit < 0 {
		bad("maxRangesPerUnit", "must not be negative, got %d", c.MaxRangesPerUnit)
	}
	if c.MaxBranches < 0 {
		bad("maxBranches", "must not be negative, got %d", c.MaxBranches)
	}
	if _, err := excerpt.ParseFields(c.ExcerptFields); err != nil {
		bad("excerptFields", "%v", err)
	}
	if c.ExcerptRatePerSecond < 0 {
		bad("excerptRatePerSecond", "must not be negative, got %g", c.ExcerptRatePerSecond)
	}
	if c.EvalWorkers < 0 {
		bad("evalWorkers", "must not be negative, got %d", c.EvalWorkers)
	}
	if c.CheckpointTTL != "" {
		if d, err := time.ParseDuration(c.CheckpointTTL); err != nil {
			bad("checkpointTtl", "%v", err)
		} else if d <= 0 {
			bad("checkpointTtl", "must be positive")
		}
	}
	if err := ValidateCron(c.CheckpointSweepCron); err != nil {
		bad("checkpointSweepCron", "%v", err)
	}
	if _, _, err := logging.ParseLevels(c.LogLevel); err != nil {
		bad("logLevel", "%v", err)
	}
	names := make(map[string]bool)
	for i, st := range c.CustomStages {
		if strings.TrimSpace(st.Kind) == "" {
			bad(fmt.Sprintf("customStages[%d]", i), "kind is required")
			continue
		}
		name := st.name()
		if names[name] {
			bad(fmt.Sprintf("customStages[%d]", i), "duplicate stage name %q", name)
		}
		names[name] = true
	}
	return errors.Join(errs...)
}

// ValidateCron checks a cron expression. Both 5-field (minute-level) and
// 6-field (second-level) syntax are accepted; empty is valid and means
// "not scheduled".
func ValidateCron(expr string) error {
	if expr == "" {
		return nil
	}
	cr := gocron.NewDefaultCron(true)
	if err := cr.IsValid(expr, time.UTC, time.Now()); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

func (s StageConfig) name() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Kind
}

// Limits returns the compiler limits c describes.
func (c *Config) Limits() query.Limits {
	l := query.Limits{
		MaxQueryTerms:       c.MaxQueryTerms,
		MaxPrefilterValues:  c.MaxPrefilterValues,
		BasePriority:        c.BasePriority,
		DateFilterSkipLimit: c.DateFilterSkipLimit,
		DateFilterScanLimit: c.DateFilterScanLimit,
		MaxRangesPerUnit:    c.MaxRangesPerUnit,
		MaxBranches:         c.MaxBranches,
	}
	for _, st := range c.CustomStages {
		l.CustomStages = append(l.CustomStages, store.Stage{
			Name:    st.name(),
			Kind:    st.Kind,
			Options: maps.Clone(st.Options),
		})
	}
	return l
}

// Excerpts returns the parsed excerpt fields; empty when excerpts are
// disabled.
func (c *Config) Excerpts() (excerpt.Fields, error) {
	return excerpt.ParseFields(c.ExcerptFields)
}

// ExcerptLimiter returns the limiter pacing excerpt lookups, or nil when
// they are unpaced.
func (c *Config) ExcerptLimiter() *rate.Limiter {
	if c.ExcerptRatePerSecond <= 0 {
		return nil
	}
	burst := max(1, int(c.ExcerptRatePerSecond))
	return rate.NewLimiter(rate.Limit(c.ExcerptRatePerSecond), burst)
}

// CheckpointRetention returns the checkpoint TTL; zero when checkpoints
// never expire.
func (c *Config) CheckpointRetention() time.Duration {
	d, err := time.ParseDuration(c.CheckpointTTL)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// StageKinds returns the kinds the custom stages use, sorted and unique.
func (c *Config) StageKinds() []string {
	kinds := make([]string, 0, len(c.CustomStages))
	for _, st := range c.CustomStages {
		kinds = append(kinds, st.Kind)
	}
	slices.Sort(kinds)
	return slices.Compact(kinds)
}
