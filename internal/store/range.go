package store

import (
	"cmp"
	"slices"
)

// Range is an interval of keys. The zero Range covers every key.
type Range struct {
	Start          Key  `msgpack:"s" json:"start"`
	End            Key  `msgpack:"e" json:"end"`
	StartInclusive bool `msgpack:"si" json:"startInclusive"`
	EndInclusive   bool `msgpack:"ei" json:"endInclusive"`
	InfiniteStart  bool `msgpack:"is,omitempty" json:"infiniteStart,omitempty"`
	InfiniteEnd    bool `msgpack:"ie,omitempty" json:"infiniteEnd,omitempty"`
}

// NewRange returns [start, end).
func NewRange(start, end Key) Range {
	return Range{Start: start, End: end, StartInclusive: true}
}

// ExactRow returns the range of every key in row.
func ExactRow(row string) Range {
	return NewRange(RowKey(row), RowKey(row).Following(Row))
}

// Prefix returns the range of every key sharing k's prefix part.
func Prefix(k Key, part PartialKey) Range {
	return NewRange(k.Start().truncate(part), k.Following(part))
}

// RowPrefix returns the range of every row starting with prefix.
func RowPrefix(prefix string) Range {
	if prefix == "" {
		return Range{InfiniteStart: true, InfiniteEnd: true}
	}
	end, ok := prefixEnd(prefix)
	if !ok {
		return Range{Start: RowKey(prefix), StartInclusive: true, InfiniteEnd: true}
	}
	return NewRange(RowKey(prefix), RowKey(end))
}

// prefixEnd returns the smallest string greater than every string with the
// given prefix.
func prefixEnd(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

func (k Key) truncate(part PartialKey) Key {
	switch part {
	case Row:
		return Key{Row: k.Row, Timestamp: maxTimestamp}
	case RowColFam:
		return Key{Row: k.Row, ColumnFamily: k.ColumnFamily, Timestamp: maxTimestamp}
	case RowColFamColQual:
		return Key{Row: k.Row, ColumnFamily: k.ColumnFamily, ColumnQualifier: k.ColumnQualifier, Timestamp: maxTimestamp}
	default:
		return k
	}
}

// BeforeStart reports whether k sorts before the range.
func (r Range) BeforeStart(k Key) bool {
	if r.InfiniteStart {
		return false
	}
	c := k.Compare(r.Start)
	return c < 0 || (c == 0 && !r.StartInclusive)
}

// AfterEnd reports whether k sorts after the range.
func (r Range) AfterEnd(k Key) bool {
	if r.InfiniteEnd {
		return false
	}
	c := k.Compare(r.End)
	return c > 0 || (c == 0 && !r.EndInclusive)
}

// Contains reports whether k is inside the range.
func (r Range) Contains(k Key) bool {
	return !r.BeforeStart(k) && !r.AfterEnd(k)
}

// Empty reports whether no key can fall inside the range.
func (r Range) Empty() bool {
	if r.InfiniteStart || r.InfiniteEnd {
		return false
	}
	c := r.Start.Compare(r.End)
	return c > 0 || (c == 0 && !(r.StartInclusive && r.EndInclusive))
}

// After returns the part of r that sorts strictly after last. ok is false
// when nothing remains.
func (r Range) After(last Key) (rest Range, ok bool) {
	if r.AfterEnd(last) {
		// last is past the range: nothing left.
		return Range{}, false
	}
	if r.BeforeStart(last) {
		return r, true
	}
	rest = r
	rest.Start = last
	rest.StartInclusive = false
	rest.InfiniteStart = false
	if rest.Empty() {
		return Range{}, false
	}
	return rest, true
}

func (r Range) String() string {
	var start, end string
	switch {
	case r.InfiniteStart:
		start = "(-inf"
	case r.StartInclusive:
		start = "[" + r.Start.String()
	default:
		start = "(" + r.Start.String()
	}
	switch {
	case r.InfiniteEnd:
		end = "+inf)"
	case r.EndInclusive:
		end = r.End.String() + "]"
	default:
		end = r.End.String() + ")"
	}
	return start + ", " + end
}

// CompareRanges orders ranges by start key, unbounded starts first.
func CompareRanges(a, b Range) int {
	switch {
	case a.InfiniteStart && b.InfiniteStart:
		return 0
	case a.InfiniteStart:
		return -1
	case b.InfiniteStart:
		return 1
	}
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	// Inclusive starts sort first.
	return cmp.Compare(boolRank(!a.StartInclusive), boolRank(!b.StartInclusive))
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SortRanges sorts ranges and drops exact duplicates.
func SortRanges(ranges []Range) []Range {
	out := slices.Clone(ranges)
	slices.SortFunc(out, CompareRanges)
	return slices.Compact(out)
}
