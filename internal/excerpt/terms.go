package excerpt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"sieve/internal/store"
	"sieve/internal/termoffset"
)

// termPrefix starts the qualifier of a term-frequency entry:
//
//	tf \x00 FIELD \x00 term
//
// The value is the msgpack encoded, sorted token offsets of the term.
const termPrefix = "tf\x00"

// TermKey returns the key of the term-frequency entry for term in field of
// the record stored under row and family.
func TermKey(row, family, field, term string) store.Key {
	return store.Key{Row: row, ColumnFamily: family, ColumnQualifier: termPrefix + field + "\x00" + term}
}

// TermEntry encodes the offsets of term.
func TermEntry(row, family, field, term string, offsets []int) (store.Entry, error) {
	sorted := slices.Clone(offsets)
	slices.Sort(sorted)
	raw, err := msgpack.Marshal(sorted)
	if err != nil {
		return store.Entry{}, fmt.Errorf("encode offsets of %s/%s: %w", field, term, err)
	}
	return store.Entry{Key: TermKey(row, family, field, term), Value: raw}, nil
}

// TermEntries returns the term-frequency entries of every term in list for
// record id, which has the form row \x00 family.
func TermEntries(recordID, field string, list *termoffset.TermFrequencyList) ([]store.Entry, error) {
	row, family, ok := strings.Cut(recordID, "\x00")
	if !ok {
		return nil, fmt.Errorf("record id %q has no column family", recordID)
	}
	var out []store.Entry
	for _, term := range list.Terms() {
		offsets := list.Offsets(term, recordID)
		if len(offsets) == 0 {
			continue
		}
		e, err := TermEntry(row, family, field, term, offsets)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// parseTermKey splits a term-frequency qualifier.
func parseTermKey(cq string) (field, term string, ok bool) {
	rest, ok := strings.CutPrefix(cq, termPrefix)
	if !ok {
		return "", "", false
	}
	return strings.Cut(rest, "\x00")
}

func decodeOffsets(raw []byte) ([]int, error) {
	var offsets []int
	if err := msgpack.Unmarshal(raw, &offsets); err != nil {
		return nil, err
	}
	return offsets, nil
}
