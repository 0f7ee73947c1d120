// Package edge defines the edge record layout and the filter stages that
// run over edge entries during a scan.
//
// An edge links a SOURCE value to a SINK value. Its key is
//
//	row:       SOURCE \x00 SINK
//	family:    TYPE / RELATION
//	qualifier: yyyymmdd / ATTRIBUTE1 / ATTRIBUTE2 / ATTRIBUTE3 / D
//
// where D says which date the edge was recorded under: E (event date),
// A (activity date) or B (both). Statistics edges have type STATS. The
// value is a msgpack encoded Value.
package edge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"sieve/internal/eval"
	"sieve/internal/store"
)

// Field names an edge exposes to expressions.
const (
	FieldSource     = "SOURCE"
	FieldSink       = "SINK"
	FieldType       = "TYPE"
	FieldRelation   = "RELATION"
	FieldAttribute1 = "ATTRIBUTE1"
	FieldAttribute2 = "ATTRIBUTE2"
	FieldAttribute3 = "ATTRIBUTE3"
	FieldDate       = "DATE"
	FieldLoadDate   = "LOAD_DATE"
	FieldDateType   = "DATE_TYPE"
	FieldCount      = "COUNT"
)

// StatsType is the edge type of statistics edges.
const StatsType = "STATS"

// DateLayout is the layout of dates in qualifiers and stage options.
const DateLayout = "20060102"

// Date codes in the qualifier.
const (
	CodeEvent    = "E"
	CodeActivity = "A"
	CodeBoth     = "B"
)

// ErrMalformedEdge is returned for entries that do not follow the layout.
var ErrMalformedEdge = errors.New("malformed edge")

// Value is the payload of an edge entry.
type Value struct {
	Count    int64  `msgpack:"c"`
	LoadDate string `msgpack:"l,omitempty"`
}

// Edge is one decoded edge entry.
type Edge struct {
	Source     string    `json:"source"`
	Sink       string    `json:"sink"`
	Type       string    `json:"type"`
	Relation   string    `json:"relation"`
	Attribute1 string    `json:"attribute1,omitempty"`
	Attribute2 string    `json:"attribute2,omitempty"`
	Attribute3 string    `json:"attribute3,omitempty"`
	Date       time.Time `json:"date"`
	DateCode   string    `json:"dateCode"`
	LoadDate   time.Time `json:"loadDate,omitzero"`
	Count      int64     `json:"count"`
	Visibility string    `json:"visibility,omitempty"`
	Timestamp  int64     `json:"timestamp"`
}

// Stats reports whether the edge is a statistics edge.
func (e Edge) Stats() bool {
	return e.Type == StatsType
}

// Row returns the row of an edge between source and sink.
func Row(source, sink string) string {
	return source + "\x00" + sink
}

// Family returns the column family of an edge type and relation.
func Family(edgeType, relation string) string {
	return edgeType + "/" + relation
}

// Key returns the store key of e.
func (e Edge) Key() store.Key {
	code := e.DateCode
	if code == "" {
		code = CodeEvent
	}
	cq := strings.Join([]string{e.Date.UTC().Format(DateLayout), e.Attribute1, e.Attribute2, e.Attribute3, code}, "/")
	return store.Key{
		Row:             Row(e.Source, e.Sink),
		ColumnFamily:    Family(e.Type, e.Relation),
		ColumnQualifier: cq,
		Visibility:      e.Visibility,
		Timestamp:       e.Timestamp,
	}
}

// Entry encodes e.
func (e Edge) Entry() (store.Entry, error) {
	v := Value{Count: e.Count}
	if !e.LoadDate.IsZero() {
		v.LoadDate = e.LoadDate.UTC().Format(DateLayout)
	}
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return store.Entry{}, fmt.Errorf("encode edge value: %w", err)
	}
	return store.Entry{Key: e.Key(), Value: raw}, nil
}

// keyParts is the key layout without the value.
type keyParts struct {
	source, sink, edgeType, relation string
	date                             string
	attrs                            [3]string
	code                             string
}

func splitKey(k store.Key) (keyParts, error) {
	var p keyParts
	var ok bool
	p.source, p.sink, ok = strings.Cut(k.Row, "\x00")
	if !ok {
		return p, fmt.Errorf("%w: row %q has no sink", ErrMalformedEdge, k.Row)
	}
	p.edgeType, p.relation, _ = strings.Cut(k.ColumnFamily, "/")
	parts := strings.Split(k.ColumnQualifier, "/")
	if len(parts) != 5 {
		return p, fmt.Errorf("%w: qualifier %q", ErrMalformedEdge, k.ColumnQualifier)
	}
	p.date = parts[0]
	copy(p.attrs[:], parts[1:4])
	p.code = parts[4]
	return p, nil
}

// Decode parses an edge entry.
func Decode(entry store.Entry) (Edge, error) {
	p, err := splitKey(entry.Key)
	if err != nil {
		return Edge{}, err
	}
	date, err := time.Parse(DateLayout, p.date)
	if err != nil {
		return Edge{}, fmt.Errorf("%w: date %q", ErrMalformedEdge, p.date)
	}
	e := Edge{
		Source:     p.source,
		Sink:       p.sink,
		Type:       p.edgeType,
		Relation:   p.relation,
		Attribute1: p.attrs[0],
		Attribute2: p.attrs[1],
		Attribute3: p.attrs[2],
		Date:       date,
		DateCode:   p.code,
		Visibility: entry.Key.Visibility,
		Timestamp:  entry.Key.Timestamp,
	}
	if len(entry.Value) > 0 {
		var v Value
		if err := msgpack.Unmarshal(entry.Value, &v); err != nil {
			return Edge{}, fmt.Errorf("%w: value: %w", ErrMalformedEdge, err)
		}
		e.Count = v.Count
		if v.LoadDate != "" {
			if e.LoadDate, err = time.Parse(DateLayout, v.LoadDate); err != nil {
				return Edge{}, fmt.Errorf("%w: load date %q", ErrMalformedEdge, v.LoadDate)
			}
		}
	}
	return e, nil
}

// Context returns the evaluation context of e. Empty attributes are
// absent.
func (e Edge) Context() *eval.Context {
	c := eval.NewContext()
	set := func(field, value string) {
		if value != "" {
			c.Set(field, eval.Str(value))
		}
	}
	set(FieldSource, e.Source)
	set(FieldSink, e.Sink)
	set(FieldType, e.Type)
	set(FieldRelation, e.Relation)
	set(FieldAttribute1, e.Attribute1)
	set(FieldAttribute2, e.Attribute2)
	set(FieldAttribute3, e.Attribute3)
	set(FieldDate, e.Date.UTC().Format(DateLayout))
	if !e.LoadDate.IsZero() {
		set(FieldLoadDate, e.LoadDate.UTC().Format(DateLayout))
	}
	set(FieldDateType, e.DateCode)
	set(FieldCount, strconv.FormatInt(e.Count, 10))
	return c
}
