package eval

import (
	"slices"

	"sieve/internal/document"
	"sieve/internal/termoffset"
)

// Value is one value of a field in the evaluation context.
type Value struct {
	// Normalized is compared against literals.
	Normalized string
	// Original is the value as ingested. filter:includeText matches on it.
	Original string
	// Source is the attribute the value came from, if known. Its visibility
	// labels hit terms.
	Source *document.Attribute
}

// Text returns the original value, falling back to the normalized one.
func (v Value) Text() string {
	if v.Original != "" {
		return v.Original
	}
	return v.Normalized
}

// Str returns a Value whose normalized and original forms are both s.
func Str(s string) Value {
	return Value{Normalized: s, Original: s}
}

// Context maps field names to the values of the record being evaluated.
// Multi-valued fields behave as sets: a comparison matches if any value does.
// A Context is read-only during an evaluation call; phrase positions are
// returned in the Result. Offsets supplies the term frequencies phrase
// functions search.
type Context struct {
	fields  map[string][]Value
	Offsets *termoffset.Map
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{fields: make(map[string][]Value)}
}

// Set replaces the values of field.
func (c *Context) Set(field string, values ...Value) *Context {
	c.fields[field] = slices.Clone(values)
	return c
}

// Add appends values to field.
func (c *Context) Add(field string, values ...Value) *Context {
	c.fields[field] = append(c.fields[field], values...)
	return c
}

// Values returns the values of field; nil when absent.
func (c *Context) Values(field string) []Value {
	if c == nil {
		return nil
	}
	return c.fields[field]
}

// Fields returns the field names present, sorted.
func (c *Context) Fields() []string {
	names := make([]string, 0, len(c.fields))
	for name := range c.fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// FromDocument builds a context from the attributes of doc. Each value keeps
// a pointer to its attribute so hit terms inherit its visibility. normalize
// may be nil.
func FromDocument(doc *document.Document, normalize func(field, value string) string) *Context {
	c := NewContext()
	for _, name := range doc.Names() {
		attrs := doc.Get(name)
		values := make([]Value, len(attrs))
		for i := range attrs {
			v := attrs[i].Value
			norm := v
			if normalize != nil {
				norm = normalize(name, v)
			}
			values[i] = Value{Normalized: norm, Original: v, Source: &attrs[i]}
		}
		c.fields[name] = values
	}
	return c
}

// Resolution is the outcome of looking up a field. A Full resolution is
// authoritative. A Partial one came through the incomplete-field path: the
// values were supplied by the fallback, or, when Unresolved is set, nothing
// could be supplied and terms over the field are assumed satisfied.
type Resolution struct {
	Values     []Value
	Partial    bool
	Unresolved bool
	Fields     []string // fields that took the partial path
}

// Fallback supplies values for a field declared incomplete. Returning false
// leaves the field unresolved.
type Fallback func(field string) ([]Value, bool)
