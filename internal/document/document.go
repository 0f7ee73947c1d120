// Package document holds the evidence container produced for each record:
// an ordered set of named attributes, each carrying a visibility label, a
// logical timestamp and a keep flag.
//
// A Document is owned by whichever pipeline stage currently holds it and is
// not safe for concurrent use.
package document

import (
	"slices"
	"strings"
)

// Attribute names written by the evaluation engine and excerpt extractor.
const (
	HitTermAttr       = "HIT_TERM"
	EvalStateAttr     = "EVAL_STATE"
	PhraseIndexesAttr = "PHRASE_INDEXES_ATTRIBUTE"
	HitExcerptAttr    = "HIT_EXCERPT"
)

// Attribute is one value of a named document attribute.
type Attribute struct {
	Value      string `json:"value" msgpack:"value"`
	Visibility string `json:"visibility,omitempty" msgpack:"visibility,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`

	// ToKeep marks the attribute as persisted output. Transient attributes
	// are dropped before results leave the engine.
	ToKeep bool `json:"toKeep" msgpack:"toKeep"`
}

// Document is an ordered mapping from attribute name to values.
type Document struct {
	Visibility string
	Timestamp  int64
	ToKeep     bool

	names  []string
	fields map[string][]Attribute
}

// New returns an empty Document marked to keep.
func New(visibility string, timestamp int64) *Document {
	return &Document{
		Visibility: visibility,
		Timestamp:  timestamp,
		ToKeep:     true,
		fields:     make(map[string][]Attribute),
	}
}

func (d *Document) init() {
	if d.fields == nil {
		d.fields = make(map[string][]Attribute)
	}
}

// Put replaces all values of name.
func (d *Document) Put(name string, attrs ...Attribute) {
	d.init()
	if _, ok := d.fields[name]; !ok {
		d.names = append(d.names, name)
	}
	d.fields[name] = slices.Clone(attrs)
}

// Add appends values to name, creating it if needed.
func (d *Document) Add(name string, attrs ...Attribute) {
	d.init()
	if _, ok := d.fields[name]; !ok {
		d.names = append(d.names, name)
	}
	d.fields[name] = append(d.fields[name], attrs...)
}

// Get returns the values of name, or nil.
func (d *Document) Get(name string) []Attribute {
	return d.fields[name]
}

// First returns the first value of name.
func (d *Document) First(name string) (Attribute, bool) {
	attrs := d.fields[name]
	if len(attrs) == 0 {
		return Attribute{}, false
	}
	return attrs[0], true
}

// Has reports whether name has at least one value.
func (d *Document) Has(name string) bool {
	return len(d.fields[name]) > 0
}

// Remove deletes name.
func (d *Document) Remove(name string) {
	if _, ok := d.fields[name]; !ok {
		return
	}
	delete(d.fields, name)
	d.names = slices.DeleteFunc(d.names, func(n string) bool { return n == name })
}

// Names returns attribute names in insertion order.
func (d *Document) Names() []string {
	return slices.Clone(d.names)
}

// Len returns the number of attribute names.
func (d *Document) Len() int {
	return len(d.names)
}

// VisibilityFor looks up the visibility of the attribute field whose value
// equals value. Used when a hit term's source record is unknown.
func (d *Document) VisibilityFor(field, value string) (string, bool) {
	for _, a := range d.fields[field] {
		if a.Value == value {
			return a.Visibility, true
		}
	}
	return "", false
}

// Values returns the plain values of name.
func (d *Document) Values(name string) []string {
	attrs := d.fields[name]
	out := make([]string, len(attrs))
	for i, a := range attrs {
		out[i] = a.Value
	}
	return out
}

// HitTerm is evidence that a specific field value caused a match.
type HitTerm struct {
	Field      string
	Value      string
	Visibility string
}

// String renders the hit as FIELD:value.
func (h HitTerm) String() string {
	return h.Field + ":" + h.Value
}

// ParseHitTerm splits FIELD:value at the first colon.
func ParseHitTerm(s string) (HitTerm, bool) {
	field, value, ok := strings.Cut(s, ":")
	if !ok || field == "" {
		return HitTerm{}, false
	}
	return HitTerm{Field: field, Value: value}, true
}

// HitTerms returns the hit terms recorded on the document.
func (d *Document) HitTerms() []HitTerm {
	attrs := d.fields[HitTermAttr]
	out := make([]HitTerm, 0, len(attrs))
	for _, a := range attrs {
		if h, ok := ParseHitTerm(a.Value); ok {
			h.Visibility = a.Visibility
			out = append(out, h)
		}
	}
	return out
}
