package eval

import (
	"context"

	"golang.org/x/sync/errgroup"

	"sieve/internal/document"
)

// Input is one record of a batch. Doc may be nil.
type Input struct {
	Context *Context
	Doc     *document.Document
}

// EvaluateAll evaluates every input with at most workers goroutines and
// returns the results in input order. Each input must have its own Context
// and Doc. It stops early with ctx's error when ctx is cancelled.
func EvaluateAll(ctx context.Context, ev *Evaluation, inputs []Input, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]Result, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, in := range inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = ev.Evaluate(in.Context, in.Doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
