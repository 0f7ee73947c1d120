package store

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
)

// Filter transforms a scan sequence. A stage may drop, rewrite or
// aggregate entries but must keep its output in key order.
type Filter func(ctx context.Context, in iter.Seq2[Entry, error]) iter.Seq2[Entry, error]

// StageFactory builds the filter for a stage from its options. Option
// errors should wrap ErrStageOption.
type StageFactory func(stage Stage) (Filter, error)

// Registry maps stage kinds to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]StageFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]StageFactory)}
}

// Register adds a factory for kind, replacing any previous one.
func (r *Registry) Register(kind string, f StageFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Build composes the filters of stages in ascending priority order. Stages
// with equal priority keep their relative order.
func (r *Registry) Build(stages []Stage) (Filter, error) {
	ordered := slices.Clone(stages)
	slices.SortStableFunc(ordered, func(a, b Stage) int { return cmp.Compare(a.Priority, b.Priority) })

	r.mu.RLock()
	defer r.mu.RUnlock()
	filters := make([]Filter, 0, len(ordered))
	for _, st := range ordered {
		f, ok := r.factories[st.Kind]
		if !ok {
			return nil, &StageError{Stage: st, Err: fmt.Errorf("%w: %q", ErrUnknownStage, st.Kind)}
		}
		filter, err := f(st)
		if err != nil {
			return nil, &StageError{Stage: st, Err: err}
		}
		filters = append(filters, filter)
	}

	return func(ctx context.Context, in iter.Seq2[Entry, error]) iter.Seq2[Entry, error] {
		out := in
		for _, f := range filters {
			out = f(ctx, out)
		}
		return out
	}, nil
}

// Predicate returns a filter that keeps entries for which keep returns
// true. Errors from keep end the scan.
func Predicate(keep func(Entry) (bool, error)) Filter {
	return func(_ context.Context, in iter.Seq2[Entry, error]) iter.Seq2[Entry, error] {
		return func(yield func(Entry, error) bool) {
			for e, err := range in {
				if err != nil {
					yield(Entry{}, err)
					return
				}
				ok, err := keep(e)
				if err != nil {
					yield(Entry{}, err)
					return
				}
				if ok && !yield(e, nil) {
					return
				}
			}
		}
	}
}
