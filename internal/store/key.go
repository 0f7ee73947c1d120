package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Key identifies one entry. Keys sort by row, column family, column
// qualifier and visibility ascending, then by timestamp descending so the
// newest version of a cell comes first.
type Key struct {
	Row             string `msgpack:"r" json:"row"`
	ColumnFamily    string `msgpack:"f,omitempty" json:"columnFamily,omitempty"`
	ColumnQualifier string `msgpack:"q,omitempty" json:"columnQualifier,omitempty"`
	Visibility      string `msgpack:"v,omitempty" json:"visibility,omitempty"`
	Timestamp       int64  `msgpack:"t,omitempty" json:"timestamp,omitempty"`
}

// PartialKey names a key prefix.
type PartialKey int

const (
	Row PartialKey = iota + 1
	RowColFam
	RowColFamColQual
	RowColFamColQualVis
)

// Compare orders keys. It returns -1, 0 or +1.
func (k Key) Compare(o Key) int {
	if c := strings.Compare(k.Row, o.Row); c != 0 {
		return c
	}
	if c := strings.Compare(k.ColumnFamily, o.ColumnFamily); c != 0 {
		return c
	}
	if c := strings.Compare(k.ColumnQualifier, o.ColumnQualifier); c != 0 {
		return c
	}
	if c := strings.Compare(k.Visibility, o.Visibility); c != 0 {
		return c
	}
	switch {
	case k.Timestamp > o.Timestamp:
		return -1
	case k.Timestamp < o.Timestamp:
		return 1
	default:
		return 0
	}
}

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool { return k.Compare(o) < 0 }

// Equal compares the components named by part.
func (k Key) Equal(o Key, part PartialKey) bool {
	switch part {
	case Row:
		return k.Row == o.Row
	case RowColFam:
		return k.Row == o.Row && k.ColumnFamily == o.ColumnFamily
	case RowColFamColQual:
		return k.Row == o.Row && k.ColumnFamily == o.ColumnFamily && k.ColumnQualifier == o.ColumnQualifier
	case RowColFamColQualVis:
		return k.Row == o.Row && k.ColumnFamily == o.ColumnFamily && k.ColumnQualifier == o.ColumnQualifier &&
			k.Visibility == o.Visibility
	default:
		return k == o
	}
}

// Following returns the smallest key that sorts after every key sharing
// k's prefix part.
func (k Key) Following(part PartialKey) Key {
	switch part {
	case Row:
		return Key{Row: k.Row + "\x00", Timestamp: maxTimestamp}
	case RowColFam:
		return Key{Row: k.Row, ColumnFamily: k.ColumnFamily + "\x00", Timestamp: maxTimestamp}
	case RowColFamColQual:
		return Key{Row: k.Row, ColumnFamily: k.ColumnFamily, ColumnQualifier: k.ColumnQualifier + "\x00", Timestamp: maxTimestamp}
	case RowColFamColQualVis:
		return Key{Row: k.Row, ColumnFamily: k.ColumnFamily, ColumnQualifier: k.ColumnQualifier,
			Visibility: k.Visibility + "\x00", Timestamp: maxTimestamp}
	default:
		return k.Successor()
	}
}

// Successor returns the key immediately after k.
func (k Key) Successor() Key {
	if k.Timestamp == minTimestamp {
		return k.Following(RowColFamColQualVis)
	}
	k.Timestamp--
	return k
}

// Start returns the first key of a prefix: the newest version of the cell
// with the given components.
func (k Key) Start() Key {
	k.Timestamp = maxTimestamp
	return k
}

// RowKey returns the first key of row.
func RowKey(row string) Key {
	return Key{Row: row, Timestamp: maxTimestamp}
}

func (k Key) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.Quote(k.Row))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Quote(k.ColumnFamily))
	sb.WriteByte(':')
	sb.WriteString(strconv.Quote(k.ColumnQualifier))
	sb.WriteString(" [")
	sb.WriteString(k.Visibility)
	sb.WriteString("] ")
	sb.WriteString(strconv.FormatInt(k.Timestamp, 10))
	return sb.String()
}

const (
	maxTimestamp = int64(^uint64(0) >> 1)
	minTimestamp = -maxTimestamp - 1
)

// Byte encoding of keys. Each string component has 0x00 escaped as
// 0x00 0xFF and is terminated by 0x00 0x01, so byte order equals Key order.
// The timestamp follows as 8 big-endian bytes, inverted to sort newest first.
const (
	escapeByte = 0x00
	escapedNul = 0xFF
	terminator = 0x01
)

// ErrMalformedKey is returned when decoding bytes that were not produced by
// Encode.
var ErrMalformedKey = errors.New("malformed key")

// Encode returns the order-preserving byte form of k.
func (k Key) Encode() []byte {
	n := len(k.Row) + len(k.ColumnFamily) + len(k.ColumnQualifier) + len(k.Visibility) + 8 + 8
	buf := make([]byte, 0, n)
	for _, s := range []string{k.Row, k.ColumnFamily, k.ColumnQualifier, k.Visibility} {
		buf = appendComponent(buf, s)
	}
	return binary.BigEndian.AppendUint64(buf, ^(uint64(k.Timestamp) ^ (1 << 63)))
}

func appendComponent(buf []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] == escapeByte {
			buf = append(buf, escapeByte, escapedNul)
			continue
		}
		buf = append(buf, s[i])
	}
	return append(buf, escapeByte, terminator)
}

// DecodeKey parses the output of Encode.
func DecodeKey(b []byte) (Key, error) {
	var parts [4]string
	rest := b
	for i := range parts {
		s, n, err := readComponent(rest)
		if err != nil {
			return Key{}, fmt.Errorf("%w: component %d: %w", ErrMalformedKey, i, err)
		}
		parts[i] = s
		rest = rest[n:]
	}
	if len(rest) != 8 {
		return Key{}, fmt.Errorf("%w: timestamp has %d bytes", ErrMalformedKey, len(rest))
	}
	ts := int64(^binary.BigEndian.Uint64(rest) ^ (1 << 63))
	return Key{Row: parts[0], ColumnFamily: parts[1], ColumnQualifier: parts[2], Visibility: parts[3], Timestamp: ts}, nil
}

func readComponent(b []byte) (string, int, error) {
	var out bytes.Buffer
	for i := 0; i < len(b); i++ {
		if b[i] != escapeByte {
			out.WriteByte(b[i])
			continue
		}
		if i+1 >= len(b) {
			return "", 0, errors.New("truncated escape")
		}
		switch b[i+1] {
		case escapedNul:
			out.WriteByte(0)
			i++
		case terminator:
			return out.String(), i + 2, nil
		default:
			return "", 0, fmt.Errorf("bad escape 0x%02x", b[i+1])
		}
	}
	return "", 0, errors.New("missing terminator")
}
