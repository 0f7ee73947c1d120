// Package bolt provides a store.Table persisted in a bbolt database file.
// Keys are stored in their order-preserving byte encoding, so bbolt's
// cursor order is the store's key order.
package bolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"

	"sieve/internal/logging"
	"sieve/internal/store"
)

var entriesBucket = []byte("entries")

// batchSize bounds how many entries one read transaction collects. Scans
// never yield while a transaction is open.
const batchSize = 256

// Options configure Open.
type Options struct {
	// Timeout waits for the file lock. Zero waits one second.
	Timeout time.Duration
	// ReadOnly opens the database without write access.
	ReadOnly bool
	Logger   *slog.Logger
}

// Store is a bbolt-backed store.Table and store.Writer.
type Store struct {
	db     *bolt.DB
	path   string
	logger *slog.Logger
}

var (
	_ store.Table  = (*Store)(nil)
	_ store.Writer = (*Store)(nil)
)

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Store, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout, ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if !opts.ReadOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(entriesBucket)
			return err
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init %s: %w", path, err)
		}
	}
	s := &Store{
		db:     db,
		path:   path,
		logger: logging.For(opts.Logger, "store", "path", path),
	}
	s.logger.Debug("store opened", "read_only", opts.ReadOnly)
	return s, nil
}

// DB returns the underlying database, for components that keep their own
// buckets in the same file.
func (s *Store) DB() *bolt.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces entries in one transaction.
func (s *Store) Put(ctx context.Context, entries ...store.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		for _, e := range entries {
			if err := b.Put(e.Key.Encode(), e.Value); err != nil {
				return fmt.Errorf("put %s: %w", e.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", s.path, err)
	}
	return nil
}

// Delete removes keys in one transaction.
func (s *Store) Delete(ctx context.Context, keys ...store.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		for _, k := range keys {
			if err := b.Delete(k.Encode()); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}
		return nil
	})
}

// Read yields the entries inside r, one batch per read transaction.
func (s *Store) Read(ctx context.Context, r store.Range) iter.Seq2[store.Entry, error] {
	return func(yield func(store.Entry, error) bool) {
		var seek []byte
		inclusive := true
		if !r.InfiniteStart {
			seek = r.Start.Encode()
			inclusive = r.StartInclusive
		}
		for {
			if err := ctx.Err(); err != nil {
				yield(store.Entry{}, err)
				return
			}
			batch, done, err := s.readBatch(r, seek, inclusive)
			if err != nil {
				yield(store.Entry{}, fmt.Errorf("scan %s: %w", s.path, err))
				return
			}
			for _, e := range batch {
				if !yield(e, nil) {
					return
				}
			}
			if done || len(batch) == 0 {
				return
			}
			seek = batch[len(batch)-1].Key.Encode()
			inclusive = false
		}
	}
}

func (s *Store) readBatch(r store.Range, seek []byte, inclusive bool) (batch []store.Entry, done bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		if b == nil {
			done = true
			return nil
		}
		c := b.Cursor()
		var k, v []byte
		if seek == nil {
			k, v = c.First()
		} else {
			k, v = c.Seek(seek)
			if k != nil && !inclusive && bytes.Equal(k, seek) {
				k, v = c.Next()
			}
		}
		for ; k != nil; k, v = c.Next() {
			key, err := store.DecodeKey(k)
			if err != nil {
				return err
			}
			if r.AfterEnd(key) {
				done = true
				return nil
			}
			if r.BeforeStart(key) {
				continue
			}
			batch = append(batch, store.Entry{Key: key, Value: slices.Clone(v)})
			if len(batch) == batchSize {
				return nil
			}
		}
		done = true
		return nil
	})
	return batch, done, err
}

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("key not found")

// Get returns the value stored under k.
func (s *Store) Get(k store.Key) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		if b == nil {
			return ErrNotFound
		}
		v := b.Get(k.Encode())
		if v == nil {
			return ErrNotFound
		}
		out = slices.Clone(v)
		return nil
	})
	return out, err
}
