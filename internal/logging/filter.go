package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ComponentKey is the attribute components scope their loggers with.
const ComponentKey = "component"

// levels is the state shared by a ComponentFilterHandler and its clones.
type levels struct {
	mu         sync.RWMutex
	defaultLvl slog.Level
	byName     map[string]slog.Level
}

func (l *levels) get(component string) slog.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if lvl, ok := l.byName[component]; ok {
		return lvl
	}
	return l.defaultLvl
}

// lowest returns the most verbose level any component may log at.
func (l *levels) lowest() slog.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lowest := l.defaultLvl
	for _, lvl := range l.byName {
		lowest = min(lowest, lvl)
	}
	return lowest
}

// ComponentFilterHandler filters records by the level configured for their
// "component" attribute, falling back to a default level. Levels can be
// changed while loggers are in use; loggers derived with With share them.
type ComponentFilterHandler struct {
	next      slog.Handler
	levels    *levels
	component string // from WithAttrs, if any
}

// NewComponentFilterHandler wraps next. Records without a component are
// filtered at defaultLevel.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	return &ComponentFilterHandler{
		next:   next,
		levels: &levels{defaultLvl: defaultLevel, byName: make(map[string]slog.Level)},
	}
}

// SetLevel sets the level of component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	h.levels.mu.Lock()
	defer h.levels.mu.Unlock()
	h.levels.byName[component] = level
}

// ClearLevel reverts component to the default level.
func (h *ComponentFilterHandler) ClearLevel(component string) {
	h.levels.mu.Lock()
	defer h.levels.mu.Unlock()
	delete(h.levels.byName, component)
}

// Level returns the effective level of component.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	return h.levels.get(component)
}

// SetDefaultLevel sets the level of components without their own.
func (h *ComponentFilterHandler) SetDefaultLevel(level slog.Level) {
	h.levels.mu.Lock()
	defer h.levels.mu.Unlock()
	h.levels.defaultLvl = level
}

// Configure replaces every level with those of a ParseLevels spec.
func (h *ComponentFilterHandler) Configure(spec string) error {
	def, byName, err := ParseLevels(spec)
	if err != nil {
		return err
	}
	h.levels.mu.Lock()
	defer h.levels.mu.Unlock()
	h.levels.defaultLvl = def
	h.levels.byName = byName
	return nil
}

// DefaultLevel returns the level used for components without their own.
func (h *ComponentFilterHandler) DefaultLevel() slog.Level {
	h.levels.mu.RLock()
	defer h.levels.mu.RUnlock()
	return h.levels.defaultLvl
}

func (h *ComponentFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	// The component of a record is only known in Handle unless it was
	// attached with With.
	threshold := h.levels.lowest()
	if h.component != "" {
		threshold = h.levels.get(h.component)
	}
	if level < threshold {
		return false
	}
	return h.next == nil || h.next.Enabled(ctx, level)
}

func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	component := h.component
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == ComponentKey {
			component = a.Value.String()
			return false
		}
		return true
	})
	if r.Level < h.levels.get(component) || h.next == nil {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	for _, a := range attrs {
		if a.Key == ComponentKey {
			clone.component = a.Value.String()
		}
	}
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	return &clone
}

func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return &clone
}

// ParseLevels parses a level specification such as
//
//	info,engine=debug,compiler=warn
//
// into a default level and per-component levels. A bare level sets the
// default; an empty spec is info.
func ParseLevels(spec string) (slog.Level, map[string]slog.Level, error) {
	def := slog.LevelInfo
	byName := make(map[string]slog.Level)
	for part := range strings.SplitSeq(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, scoped := strings.Cut(part, "=")
		if !scoped {
			value = name
		}
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
			return 0, nil, fmt.Errorf("log level %q: %w", part, err)
		}
		if !scoped {
			def = lvl
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return 0, nil, fmt.Errorf("log level %q: missing component", part)
		}
		byName[name] = lvl
	}
	return def, byName, nil
}
