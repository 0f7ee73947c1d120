// Package memory provides an in-memory sorted table backed by a B-tree.
package memory

import (
	"context"
	"iter"
	"slices"
	"sync"

	"github.com/google/btree"

	"sieve/internal/store"
)

const degree = 32

// Store is an in-memory store.Table and store.Writer. It is safe for
// concurrent use; scans read a snapshot taken when they start.
type Store struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[store.Entry]
}

var (
	_ store.Table  = (*Store)(nil)
	_ store.Writer = (*Store)(nil)
)

func less(a, b store.Entry) bool { return a.Key.Less(b.Key) }

// New returns an empty store.
func New() *Store {
	return &Store{tree: btree.NewG(degree, less)}
}

// Put inserts or replaces entries.
func (s *Store) Put(_ context.Context, entries ...store.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		e.Value = slices.Clone(e.Value)
		s.tree.ReplaceOrInsert(e)
	}
	return nil
}

// Delete removes keys. Missing keys are ignored.
func (s *Store) Delete(_ context.Context, keys ...store.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.tree.Delete(store.Entry{Key: k})
	}
	return nil
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

// Read yields the entries inside r.
func (s *Store) Read(ctx context.Context, r store.Range) iter.Seq2[store.Entry, error] {
	s.mu.RLock()
	snapshot := s.tree.Clone()
	s.mu.RUnlock()

	return func(yield func(store.Entry, error) bool) {
		visit := func(e store.Entry) bool {
			if r.BeforeStart(e.Key) {
				return true
			}
			if r.AfterEnd(e.Key) {
				return false
			}
			if err := ctx.Err(); err != nil {
				yield(store.Entry{}, err)
				return false
			}
			return yield(e, nil)
		}
		if r.InfiniteStart {
			snapshot.Ascend(visit)
			return
		}
		snapshot.AscendGreaterOrEqual(store.Entry{Key: r.Start}, visit)
	}
}
