// Package store defines the sorted key-value storage contract the query
// core scans: keys ordered as in Key.Compare, scans over a set of ranges
// with an ordered list of filter stages applied server-side, and an
// optional column-family allowlist.
//
// Backends (see store/memory and store/bolt) only need to implement Table;
// NewScanner layers range merging, column-family filtering and the stage
// pipeline on top.
package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
)

// Entry is one key/value pair.
type Entry struct {
	Key   Key    `msgpack:"k" json:"key"`
	Value []byte `msgpack:"v" json:"value"`
}

// Stage is a filter stage applied during a scan. Stages run in ascending
// priority order.
type Stage struct {
	Priority int               `msgpack:"p" json:"priority"`
	Name     string            `msgpack:"n" json:"name"`
	Kind     string            `msgpack:"k" json:"kind"`
	Options  map[string]string `msgpack:"o,omitempty" json:"options,omitempty"`
}

func (s Stage) String() string {
	keys := slices.Sorted(maps.Keys(s.Options))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + s.Options[k]
	}
	return fmt.Sprintf("%d:%s(%s){%s}", s.Priority, s.Name, s.Kind, strings.Join(parts, ","))
}

// Option returns the named option and whether it was set.
func (s Stage) Option(name string) (string, bool) {
	v, ok := s.Options[name]
	return v, ok
}

// ScanRequest describes a scan.
type ScanRequest struct {
	Ranges         []Range
	Stages         []Stage
	ColumnFamilies []string // empty means all families
}

// Scanner opens scans. The sequence yields entries in key order, lazily; a
// consumer closes the scan by stopping iteration. I/O failures are yielded
// as errors, after which the sequence ends.
type Scanner interface {
	Scan(ctx context.Context, req ScanRequest) iter.Seq2[Entry, error]
}

// Table is the raw storage a backend provides.
type Table interface {
	// Read yields the entries inside r in key order.
	Read(ctx context.Context, r Range) iter.Seq2[Entry, error]
}

// Writer adds and removes entries.
type Writer interface {
	Put(ctx context.Context, entries ...Entry) error
	Delete(ctx context.Context, keys ...Key) error
}

// Errors.
var (
	ErrUnknownStage = errors.New("unknown stage kind")
	ErrStageOption  = errors.New("invalid stage option")
	ErrClosed       = errors.New("store closed")
)

// StageError reports a stage that could not be built.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.Stage.Name, e.Stage.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// tableScanner implements Scanner over a Table.
type tableScanner struct {
	table  Table
	stages *Registry
}

// NewScanner returns a Scanner that reads from table and builds stages from
// reg. A nil reg rejects every stage.
func NewScanner(table Table, reg *Registry) Scanner {
	if reg == nil {
		reg = NewRegistry()
	}
	return &tableScanner{table: table, stages: reg}
}

func (s *tableScanner) Scan(ctx context.Context, req ScanRequest) iter.Seq2[Entry, error] {
	pipeline, err := s.stages.Build(req.Stages)
	if err != nil {
		return func(yield func(Entry, error) bool) {
			yield(Entry{}, err)
		}
	}
	return pipeline(ctx, s.read(ctx, req))
}

// read concatenates the ranges in order, dropping keys already produced by
// an overlapping earlier range and entries outside the allowlist.
func (s *tableScanner) read(ctx context.Context, req ScanRequest) iter.Seq2[Entry, error] {
	ranges := SortRanges(req.Ranges)
	if len(req.Ranges) == 0 {
		ranges = []Range{{InfiniteStart: true, InfiniteEnd: true}}
	}
	var families map[string]bool
	if len(req.ColumnFamilies) > 0 {
		families = make(map[string]bool, len(req.ColumnFamilies))
		for _, cf := range req.ColumnFamilies {
			families[cf] = true
		}
	}

	return func(yield func(Entry, error) bool) {
		var last *Key
		for _, r := range ranges {
			if last != nil {
				rest, ok := r.After(*last)
				if !ok {
					continue
				}
				r = rest
			}
			for e, err := range s.table.Read(ctx, r) {
				if err != nil {
					yield(Entry{}, err)
					return
				}
				if err := ctx.Err(); err != nil {
					yield(Entry{}, err)
					return
				}
				k := e.Key
				last = &k
				if families != nil && !families[e.Key.ColumnFamily] {
					continue
				}
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Entry, error]) ([]Entry, error) {
	var out []Entry
	for e, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}
