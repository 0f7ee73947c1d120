package query

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"sieve/internal/format"
	"sieve/internal/store"
)

func sampleCheckpoint(created time.Time) Checkpoint {
	last := store.Key{Row: "alice\x00bob", ColumnFamily: "EMAIL/TO", ColumnQualifier: "20240101////E"}
	return Checkpoint{
		ID:      uuid.New(),
		QueryID: uuid.New(),
		Created: created,
		Units: []PlanUnit{{
			Ranges:         []store.Range{store.RowPrefix("alice\x00")},
			Stages:         []store.Stage{{Priority: 30, Name: "expression", Kind: "expression", Options: map[string]string{"query": "SOURCE == 'alice'"}}},
			ColumnFamilies: []string{"EMAIL/TO"},
			LastKey:        &last,
		}},
	}
}

func sameCheckpoint(t *testing.T, got, want Checkpoint) {
	t.Helper()
	if got.ID != want.ID || got.QueryID != want.QueryID {
		t.Errorf("ids = %s/%s, want %s/%s", got.ID, got.QueryID, want.ID, want.QueryID)
	}
	if !got.Created.Equal(want.Created) {
		t.Errorf("created = %v, want %v", got.Created, want.Created)
	}
	if got.Created.Location() != time.UTC {
		t.Errorf("created location = %v, want UTC", got.Created.Location())
	}
	if !reflect.DeepEqual(got.Units, want.Units) {
		t.Errorf("units = %+v, want %+v", got.Units, want.Units)
	}
}

func TestCheckpointToken(t *testing.T) {
	cp := sampleCheckpoint(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	token, err := EncodeCheckpoint(cp)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeCheckpoint(token)
	if err != nil {
		t.Fatal(err)
	}
	sameCheckpoint(t, got, cp)
}

// testCheckpointStore runs the behaviour every CheckpointStore shares.
func testCheckpointStore(t *testing.T, s CheckpointStore) {
	ctx := t.Context()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	newer := sampleCheckpoint(base.Add(time.Hour))
	older := sampleCheckpoint(base)

	if _, err := s.Get(ctx, newer.ID); !errors.Is(err, ErrCheckpointNotFound) {
		t.Fatalf("Get on empty store: error = %v, want ErrCheckpointNotFound", err)
	}
	for _, cp := range []Checkpoint{newer, older} {
		if err := s.Put(ctx, cp); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := s.Get(ctx, newer.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	sameCheckpoint(t, got, newer)

	// Mutating the result must not change what is stored.
	got.Units[0].Stages[0].Options["query"] = "changed"
	again, err := s.Get(ctx, newer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if q := again.Units[0].Stages[0].Options["query"]; q != "SOURCE == 'alice'" {
		t.Errorf("stored query = %q after mutating a copy", q)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != older.ID || list[1].ID != newer.ID {
		t.Fatalf("List order = %v, want oldest first", list)
	}

	if err := s.Delete(ctx, older.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, older.ID); err != nil {
		t.Fatalf("Delete of unknown id: %v", err)
	}
	if _, err := s.Get(ctx, older.ID); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("Get after Delete: error = %v", err)
	}
	list, err = s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("List after Delete = %d checkpoints, want 1", len(list))
	}
}

func TestMemoryCheckpoints(t *testing.T) {
	testCheckpointStore(t, NewMemoryCheckpoints())
}

func openBolt(t *testing.T, path string) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func TestBoltCheckpoints(t *testing.T) {
	db := openBolt(t, filepath.Join(t.TempDir(), "checkpoints.db"))
	defer db.Close()
	s, err := NewBoltCheckpoints(db)
	if err != nil {
		t.Fatal(err)
	}
	testCheckpointStore(t, s)
}

func TestBoltCheckpointsReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	cp := sampleCheckpoint(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	db := openBolt(t, path)
	s, err := NewBoltCheckpoints(db)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(t.Context(), cp); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db = openBolt(t, path)
	defer db.Close()
	s, err = NewBoltCheckpoints(db)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(t.Context(), cp.ID)
	if err != nil {
		t.Fatal(err)
	}
	sameCheckpoint(t, got, cp)
}

func TestBoltCheckpointsRejectsUnknownVersion(t *testing.T) {
	db := openBolt(t, filepath.Join(t.TempDir(), "checkpoints.db"))
	s, err := NewBoltCheckpoints(db)
	if err != nil {
		t.Fatal(err)
	}
	id := uuid.New()
	err = db.Update(func(tx *bolt.Tx) error {
		newer := format.Header{Type: format.TypeCheckpoint, Version: 9}
		return tx.Bucket(checkpointBucket).Put(id[:], newer.Wrap([]byte{0x80}))
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(t.Context(), id); !errors.Is(err, format.ErrVersionMismatch) {
		t.Fatalf("Get err = %v, want version mismatch", err)
	}
	if _, err := s.List(t.Context()); !errors.Is(err, format.ErrVersionMismatch) {
		t.Fatalf("List err = %v, want version mismatch", err)
	}
}
