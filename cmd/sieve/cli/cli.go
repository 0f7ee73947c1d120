// Package cli implements the sieve command tree: query rewriting and
// compilation, record evaluation, loading and scanning a local edge store,
// and checkpoint management.
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"sieve/internal/config"
	configfile "sieve/internal/config/file"
	"sieve/internal/edge"
	"sieve/internal/excerpt"
	"sieve/internal/home"
	"sieve/internal/logging"
	"sieve/internal/query"
	"sieve/internal/store"
	storebolt "sieve/internal/store/bolt"
)

// env is the state shared by the commands of one invocation.
type env struct {
	logger *slog.Logger
	levels *logging.ComponentFilterHandler // may be nil
	cfg    *config.Config
}

// NewRootCommand returns the sieve command with all subcommands wired in.
// levels, when set, receives the levels of --log-level and of the config.
func NewRootCommand(logger *slog.Logger, levels *logging.ComponentFilterHandler) *cobra.Command {
	e := &env{logger: logging.Default(logger), levels: levels}

	cmd := &cobra.Command{
		Use:           "sieve",
		Short:         "Compile, evaluate and execute edge queries",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("log-level") {
				return nil
			}
			spec, _ := cmd.Flags().GetString("log-level")
			return e.configureLevels(spec)
		},
	}

	cmd.PersistentFlags().String("home", "", "home directory (default: platform config dir)")
	cmd.PersistentFlags().String("config", "", "config file (default: <home>/config.json)")
	cmd.PersistentFlags().String("log-level", "", "log levels, e.g. info or warn,engine=debug (default: config logLevel)")
	cmd.PersistentFlags().StringP("output", "o", "table", "output format: table or json")

	cmd.AddCommand(
		newRewriteCmd(),
		newCompileCmd(e),
		newEvalCmd(e),
		newExcerptCmd(e),
		newLoadCmd(e),
		newScanCmd(e),
		newResumeCmd(e),
		newCheckpointsCmd(e),
		newConfigCmd(e),
	)
	return cmd
}

func (e *env) configureLevels(spec string) error {
	if e.levels == nil {
		_, _, err := logging.ParseLevels(spec)
		return err
	}
	return e.levels.Configure(spec)
}

func resolveHome(cmd *cobra.Command) (home.Dir, error) {
	root, _ := cmd.Flags().GetString("home")
	hd, err := home.Resolve(root)
	if err != nil {
		return home.Dir{}, fmt.Errorf("resolve home directory: %w", err)
	}
	return hd, nil
}

// config loads the configuration once per invocation, writing the default
// configuration when none is stored.
func (e *env) config(cmd *cobra.Command) (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		hd, err := resolveHome(cmd)
		if err != nil {
			return nil, err
		}
		if err := hd.EnsureExists(); err != nil {
			return nil, err
		}
		path = hd.ConfigPath()
	}
	cfg, err := config.Bootstrap(cmd.Context(), configfile.NewStore(path))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if !cmd.Flags().Changed("log-level") {
		if err := e.configureLevels(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	e.logger.Debug("config loaded", "path", path)
	e.cfg = cfg
	return cfg, nil
}

// compiler returns a compiler with the configured limits.
func (e *env) compiler(cfg *config.Config) *query.Compiler {
	return query.NewCompiler(cfg.Limits(), e.logger)
}

// registry returns the stage registry. Every kind a custom stage uses must
// be registered.
func (e *env) registry(cfg *config.Config) (*store.Registry, error) {
	reg := store.NewRegistry()
	edge.RegisterStages(reg, e.logger)
	excerpt.RegisterStage(reg, e.logger)

	kinds := reg.Kinds()
	for _, kind := range cfg.StageKinds() {
		if !slices.Contains(kinds, kind) {
			return nil, fmt.Errorf("custom stage kind %q is not registered (known: %v)", kind, kinds)
		}
	}
	return reg, nil
}

// openDB opens the edge database named by --db, defaulting to the one in
// the home directory.
func (e *env) openDB(cmd *cobra.Command, readOnly bool) (*storebolt.Store, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		hd, err := resolveHome(cmd)
		if err != nil {
			return nil, err
		}
		if err := hd.EnsureExists(); err != nil {
			return nil, err
		}
		path = hd.DatabasePath()
	}
	return storebolt.Open(path, storebolt.Options{ReadOnly: readOnly, Logger: e.logger})
}

func addDBFlag(cmd *cobra.Command) {
	cmd.Flags().String("db", "", "edge database (default: <home>/sieve.db)")
}
