// Package query compiles edge queries into scan plans and executes them
// against a store.
//
// A plan is a list of units (ranges, filter stages, column-family
// allowlist). Executions scan the units in order and track the last key
// each unit produced, so a paused execution can be checkpointed and later
// resumed without recompiling the query.
package query

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sieve/internal/logging"
	"sieve/internal/store"
)

// Engine executes scan plans.
//
// Logging:
//   - Logger is dependency-injected via the constructor
//   - Engine owns its scoped logger (component="engine")
//   - No logging per entry
type Engine struct {
	scanner     store.Scanner
	checkpoints CheckpointStore // optional
	logger      *slog.Logger
}

// New creates an engine that scans through scanner. checkpoints may be nil
// when stored checkpoints are not used. If logger is nil, logging is
// disabled.
func New(scanner store.Scanner, checkpoints CheckpointStore, logger *slog.Logger) *Engine {
	return &Engine{
		scanner:     scanner,
		checkpoints: checkpoints,
		logger:      logging.For(logger, "engine"),
	}
}

// Execute starts an execution of plan under a new query id. Nothing is
// scanned until Results is iterated.
func (e *Engine) Execute(ctx context.Context, plan *ScanPlan) *Execution {
	return e.newExecution(ctx, uuid.New(), plan.Units, nil)
}

// Resume starts an execution of the units captured in cp.
func (e *Engine) Resume(ctx context.Context, cp Checkpoint) *Execution {
	return e.newExecution(ctx, cp.QueryID, cp.Units, nil)
}

// ResumeStored resumes the stored checkpoint id. The checkpoint is deleted
// once the execution has produced every remaining entry.
func (e *Engine) ResumeStored(ctx context.Context, id uuid.UUID) (*Execution, error) {
	if e.checkpoints == nil {
		return nil, fmt.Errorf("resume %s: no checkpoint store configured", id)
	}
	cp, err := e.checkpoints.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", id, err)
	}
	onComplete := func(ctx context.Context) error {
		return e.checkpoints.Delete(ctx, id)
	}
	e.logger.Info("resuming checkpoint", "checkpoint", id, "query", cp.QueryID, "units", len(cp.Units))
	return e.newExecution(ctx, cp.QueryID, cp.Units, onComplete), nil
}

// SaveCheckpoints checkpoints x and stores the result.
func (e *Engine) SaveCheckpoints(ctx context.Context, x *Execution) ([]Checkpoint, error) {
	if e.checkpoints == nil {
		return nil, fmt.Errorf("save checkpoints: no checkpoint store configured")
	}
	cps := x.Checkpoint()
	for _, cp := range cps {
		if err := e.checkpoints.Put(ctx, cp); err != nil {
			return nil, fmt.Errorf("save checkpoint %s: %w", cp.ID, err)
		}
	}
	return cps, nil
}

func (e *Engine) newExecution(ctx context.Context, queryID uuid.UUID, units []PlanUnit, onComplete func(context.Context) error) *Execution {
	x := &Execution{
		ctx:        ctx,
		queryID:    queryID,
		scanner:    e.scanner,
		logger:     e.logger.With("query", queryID),
		onComplete: onComplete,
		units:      make([]PlanUnit, len(units)),
		done:       make([]bool, len(units)),
	}
	for i, u := range units {
		x.units[i] = u.Clone()
	}
	return x
}

// Execution is a live, resumable run of a plan.
type Execution struct {
	ctx        context.Context
	queryID    uuid.UUID
	scanner    store.Scanner
	logger     *slog.Logger
	onComplete func(context.Context) error

	mu        sync.Mutex
	units     []PlanUnit
	done      []bool
	started   bool
	completed bool
}

// QueryID identifies the query across checkpoints.
func (x *Execution) QueryID() uuid.UUID {
	return x.queryID
}

// Results yields the entries of every unit, unit by unit, each in key
// order. Stopping the iteration pauses the execution: a later call to
// Results continues after the last entry produced, and Checkpoint captures
// what is left. Scan errors are yielded and end the sequence.
func (x *Execution) Results() iter.Seq2[store.Entry, error] {
	return func(yield func(store.Entry, error) bool) {
		for i := range x.units {
			req, ok := x.pending(i)
			if !ok {
				continue
			}
			for e, err := range x.scanner.Scan(x.ctx, req) {
				if err != nil {
					yield(store.Entry{}, fmt.Errorf("query %s unit %d: %w", x.queryID, i, err))
					return
				}
				x.record(i, e.Key)
				if !yield(e, nil) {
					return
				}
			}
			x.finish(i)
		}
		x.complete()
	}
}

// pending returns the request for the rest of unit i, or false when the
// unit has nothing left.
func (x *Execution) pending(i int) (store.ScanRequest, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.done[i] {
		return store.ScanRequest{}, false
	}
	req := x.units[i].Request()
	if len(req.Ranges) == 0 {
		x.done[i] = true
		return store.ScanRequest{}, false
	}
	return req, true
}

func (x *Execution) record(i int, k store.Key) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.units[i].LastKey = &k
	x.started = true
}

func (x *Execution) finish(i int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.done[i] = true
	x.started = true
}

func (x *Execution) complete() {
	x.mu.Lock()
	if x.completed {
		x.mu.Unlock()
		return
	}
	x.completed = true
	x.mu.Unlock()

	x.logger.Debug("execution complete", "units", len(x.units))
	if x.onComplete == nil {
		return
	}
	if err := x.onComplete(context.WithoutCancel(x.ctx)); err != nil {
		x.logger.Warn("completion hook failed", "error", err)
	}
}

// Done reports whether every unit has been scanned to the end.
func (x *Execution) Done() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.completed
}

// Checkpoint captures what is left of the execution. Before any entry has
// been produced it returns one checkpoint holding every unit unchanged.
// Afterwards it returns one checkpoint per unfinished unit, holding the
// unit's remaining ranges and its last key. A finished execution has no
// checkpoints.
func (x *Execution) Checkpoint() []Checkpoint {
	x.mu.Lock()
	defer x.mu.Unlock()

	now := time.Now().UTC()
	if !x.started {
		units := make([]PlanUnit, len(x.units))
		for i, u := range x.units {
			units[i] = u.Clone()
		}
		return []Checkpoint{{ID: uuid.New(), QueryID: x.queryID, Created: now, Units: units}}
	}

	var out []Checkpoint
	for i, u := range x.units {
		if x.done[i] {
			continue
		}
		rest := u.Remaining()
		if len(rest.Ranges) == 0 {
			continue
		}
		out = append(out, Checkpoint{ID: uuid.New(), QueryID: x.queryID, Created: now, Units: []PlanUnit{rest}})
	}
	return out
}
