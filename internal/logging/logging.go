// Package logging holds the slog helpers shared by the query packages.
//
// Loggers are passed in, never global. A component scopes its logger once,
// at construction, with For; a nil logger discards. Output format,
// destination and levels are decided by the command (see
// ComponentFilterHandler), and packages never call slog.SetDefault.
//
// Nothing logs per entry or per record. Scans, evaluation and tokenizing
// stay silent; only degraded behaviour and lifecycle events are logged.
package logging

import "log/slog"

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Default returns logger, or Discard() when it is nil.
func Default(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

// For scopes logger to a component, so ComponentFilterHandler can level it:
//
//	s.logger = logging.For(logger, "sweeper")
func For(logger *slog.Logger, component string, args ...any) *slog.Logger {
	return Default(logger).With(append([]any{ComponentKey, component}, args...)...)
}
