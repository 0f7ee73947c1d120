// Package callgroup deduplicates concurrent calls by key.
//
// While a call for a key is in flight, later callers for the same key wait
// for it and share its result. Once it returns the key is forgotten and
// the next call runs again.
package callgroup

import (
	"context"
	"sync"
)

// Group deduplicates concurrent calls returning V. The zero value is ready
// to use.
type Group[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*call[V]
}

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
	dups int // callers waiting on done
}

// Do runs fn unless a call for key is in flight, in which case it waits
// for that call and returns its result with shared set. A waiter whose ctx
// ends stops waiting; the call it joined keeps running.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, shared bool, err error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*call[V])
	}
	if c, ok := g.calls[key]; ok {
		c.dups++
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.val, true, c.err
		case <-ctx.Done():
			var zero V
			return zero, true, ctx.Err()
		}
	}
	c := &call[V]{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.calls, key)
		g.mu.Unlock()
		close(c.done)
	}()
	c.val, c.err = fn()
	return c.val, false, c.err
}

// InFlight returns the number of keys with a call running.
func (g *Group[K, V]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
