// Package record reads the records the CLI evaluates and loads: one record
// per line, as a JSON object or a logfmt line.
//
// A record has plain fields, compared by queries, and text fields, which
// are also tokenized into term-frequency lists for the phrase functions and
// stored as term entries for excerpt extraction.
package record

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"sieve/internal/document"
	"sieve/internal/eval"
	"sieve/internal/excerpt"
	"sieve/internal/store"
	"sieve/internal/termoffset"
	"sieve/internal/tokenizer"
)

// Defaults for records that do not name their shard or datatype.
const (
	DefaultShard    = "shard0"
	DefaultDatatype = "record"
)

// Values is a field's values. In JSON it may be a single scalar or an
// array of scalars.
type Values []string

func (v *Values) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = nil
	case []any:
		out := make(Values, 0, len(x))
		for _, elem := range x {
			s, err := scalar(elem)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		*v = out
	default:
		s, err := scalar(x)
		if err != nil {
			return err
		}
		*v = Values{s}
	}
	return nil
}

func scalar(x any) (string, error) {
	switch s := x.(type) {
	case string:
		return s, nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(s), nil
	default:
		return "", fmt.Errorf("field value must be a string, number or boolean, got %T", x)
	}
}

// Record is one input record.
type Record struct {
	ID         string            `json:"id"`
	Shard      string            `json:"shard,omitempty"`
	Datatype   string            `json:"datatype,omitempty"`
	Visibility string            `json:"visibility,omitempty"`
	Timestamp  int64             `json:"timestamp,omitempty"`
	Fields     map[string]Values `json:"fields,omitempty"`
	Text       map[string]string `json:"text,omitempty"`

	// Source is "path:line" when read from a file.
	Source string `json:"-"`
}

// RecordID returns the id term-frequency data is keyed by:
// shard \x00 datatype \x00 id.
func (r Record) RecordID() string {
	shard, datatype := r.Shard, r.Datatype
	if shard == "" {
		shard = DefaultShard
	}
	if datatype == "" {
		datatype = DefaultDatatype
	}
	return shard + "\x00" + datatype + "\x00" + r.ID
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Document returns a document holding every field value and text field as
// attributes, in field name order.
func (r Record) Document() *document.Document {
	doc := document.New(r.Visibility, r.Timestamp)
	attr := func(v string) document.Attribute {
		return document.Attribute{Value: v, Visibility: r.Visibility, Timestamp: r.Timestamp}
	}
	for _, name := range sortedKeys(r.Fields) {
		for _, v := range r.Fields[name] {
			doc.Add(name, attr(v))
		}
	}
	for _, name := range sortedKeys(r.Text) {
		doc.Add(name, attr(r.Text[name]))
	}
	return doc
}

// Context returns the evaluation context of r and the document its hits
// are recorded on. Text fields carry term-frequency lists.
func (r Record) Context() (*eval.Context, *document.Document) {
	doc := r.Document()
	ctx := eval.FromDocument(doc, nil)
	ctx.Offsets = termoffset.NewMap()
	rid := r.RecordID()
	for _, name := range sortedKeys(r.Text) {
		ctx.Offsets.PutTermFrequencies(name, tokenizer.TermFrequencies(rid, r.Text[name]))
	}
	return ctx, doc
}

// TermEntries returns the term entries of every text field of r.
func (r Record) TermEntries() ([]store.Entry, error) {
	rid := r.RecordID()
	var entries []store.Entry
	for _, name := range sortedKeys(r.Text) {
		es, err := excerpt.TermEntries(rid, name, tokenizer.TermFrequencies(rid, r.Text[name]))
		if err != nil {
			return nil, fmt.Errorf("record %s field %s: %w", r.ID, name, err)
		}
		entries = append(entries, es...)
	}
	return entries, nil
}
