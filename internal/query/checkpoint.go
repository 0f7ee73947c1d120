package query

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"sieve/internal/codec"
	"sieve/internal/format"
)

// Checkpoint is the state needed to resume part of an execution.
type Checkpoint struct {
	ID      uuid.UUID  `msgpack:"id" json:"id"`
	QueryID uuid.UUID  `msgpack:"q" json:"queryId"`
	Created time.Time  `msgpack:"t" json:"created"`
	Units   []PlanUnit `msgpack:"u" json:"units"`
}

// EncodeCheckpoint returns cp as a URL-safe token.
func EncodeCheckpoint(cp Checkpoint) (string, error) {
	token, err := codec.Encode(base64.RawURLEncoding, cp)
	if err != nil {
		return "", fmt.Errorf("checkpoint %s: %w", cp.ID, err)
	}
	return token, nil
}

// DecodeCheckpoint parses a token produced by EncodeCheckpoint.
func DecodeCheckpoint(token string) (Checkpoint, error) {
	var cp Checkpoint
	if err := codec.Decode(base64.RawURLEncoding, token, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint token: %w", err)
	}
	cp.Created = cp.Created.UTC()
	return cp, nil
}

// CheckpointStore persists checkpoints by id.
type CheckpointStore interface {
	Put(ctx context.Context, cp Checkpoint) error
	// Get returns ErrCheckpointNotFound for unknown ids.
	Get(ctx context.Context, id uuid.UUID) (Checkpoint, error)
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns every checkpoint, oldest first.
	List(ctx context.Context) ([]Checkpoint, error)
}

func sortCheckpoints(cps []Checkpoint) {
	slices.SortFunc(cps, func(a, b Checkpoint) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}

// MemoryCheckpoints is an in-memory CheckpointStore.
type MemoryCheckpoints struct {
	mu  sync.RWMutex
	cps map[uuid.UUID]Checkpoint
}

var _ CheckpointStore = (*MemoryCheckpoints)(nil)

// NewMemoryCheckpoints returns an empty store.
func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{cps: make(map[uuid.UUID]Checkpoint)}
}

func (m *MemoryCheckpoints) Put(_ context.Context, cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cps[cp.ID] = cloneCheckpoint(cp)
	return nil
}

func (m *MemoryCheckpoints) Get(_ context.Context, id uuid.UUID) (Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.cps[id]
	if !ok {
		return Checkpoint{}, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}
	return cloneCheckpoint(cp), nil
}

func (m *MemoryCheckpoints) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cps, id)
	return nil
}

func (m *MemoryCheckpoints) List(_ context.Context) ([]Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Checkpoint, 0, len(m.cps))
	for _, cp := range m.cps {
		out = append(out, cloneCheckpoint(cp))
	}
	sortCheckpoints(out)
	return out, nil
}

func cloneCheckpoint(cp Checkpoint) Checkpoint {
	units := make([]PlanUnit, len(cp.Units))
	for i, u := range cp.Units {
		units[i] = u.Clone()
	}
	cp.Units = units
	return cp
}

var checkpointBucket = []byte("checkpoints")

// storedHeader prefixes every stored checkpoint.
var storedHeader = format.Header{Type: format.TypeCheckpoint, Version: 1}

// BoltCheckpoints stores checkpoints in a bbolt database, keyed by id. A
// value is a format header followed by the msgpack encoded checkpoint.
type BoltCheckpoints struct {
	db *bolt.DB
}

var _ CheckpointStore = (*BoltCheckpoints)(nil)

// NewBoltCheckpoints uses db, creating the checkpoint bucket if needed.
// The caller owns db.
func NewBoltCheckpoints(db *bolt.DB) (*BoltCheckpoints, error) {
	if !db.IsReadOnly() {
		err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(checkpointBucket)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("create checkpoint bucket: %w", err)
		}
	}
	return &BoltCheckpoints{db: db}, nil
}

func (b *BoltCheckpoints) Put(_ context.Context, cp Checkpoint) error {
	raw, err := msgpack.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", cp.ID, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(checkpointBucket).Put(cp.ID[:], storedHeader.Wrap(raw))
	})
}

func (b *BoltCheckpoints) Get(_ context.Context, id uuid.UUID) (Checkpoint, error) {
	var cp Checkpoint
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(checkpointBucket)
		if bucket == nil {
			return fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
		}
		raw := bucket.Get(id[:])
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
		}
		return decodeStored(raw, &cp)
	})
	return cp, err
}

func (b *BoltCheckpoints) Delete(_ context.Context, id uuid.UUID) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(checkpointBucket).Delete(id[:])
	})
}

func (b *BoltCheckpoints) List(_ context.Context) ([]Checkpoint, error) {
	var out []Checkpoint
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(checkpointBucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, raw []byte) error {
			var cp Checkpoint
			if err := decodeStored(raw, &cp); err != nil {
				return err
			}
			out = append(out, cp)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortCheckpoints(out)
	return out, nil
}

// decodeStored decodes a bucket value. bbolt values are only valid inside
// the transaction, and msgpack copies what it decodes.
func decodeStored(raw []byte, cp *Checkpoint) error {
	payload, err := format.Unwrap(raw, storedHeader)
	if err != nil {
		return fmt.Errorf("decode checkpoint: %w", err)
	}
	if err := msgpack.Unmarshal(payload, cp); err != nil {
		return fmt.Errorf("decode checkpoint: %w", err)
	}
	cp.Created = cp.Created.UTC()
	return nil
}
