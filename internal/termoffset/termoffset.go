// Package termoffset tracks token positions per field: the term-frequency
// lists a record was indexed with, and the phrase indexes recorded while
// phrase and proximity functions are evaluated.
//
// Offsets are token indexes, not byte offsets. Term frequencies are set up
// before evaluation and only read afterwards; phrase positions are recorded
// into a per-call view (ForCall), which is not safe for concurrent use.
package termoffset

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Position is one phrase hit: tokens [Start, End] of a record's field.
type Position struct {
	RecordID string
	Start    int
	End      int
}

// PhraseIndexes maps field to the positions recorded for it. Positions are
// additive; duplicates are kept.
type PhraseIndexes struct {
	byField map[string][]Position
}

// NewPhraseIndexes returns an empty set of phrase indexes.
func NewPhraseIndexes() *PhraseIndexes {
	return &PhraseIndexes{byField: make(map[string][]Position)}
}

// Add appends a position for field. start and end are swapped if reversed.
func (p *PhraseIndexes) Add(field, recordID string, start, end int) {
	if start > end {
		start, end = end, start
	}
	if p.byField == nil {
		p.byField = make(map[string][]Position)
	}
	p.byField[field] = append(p.byField[field], Position{RecordID: recordID, Start: start, End: end})
}

// Positions returns a copy of the positions recorded for field.
func (p *PhraseIndexes) Positions(field string) []Position {
	if p == nil {
		return nil
	}
	return slices.Clone(p.byField[field])
}

// Fields returns the fields with at least one position, sorted.
func (p *PhraseIndexes) Fields() []string {
	if p == nil {
		return nil
	}
	fields := make([]string, 0, len(p.byField))
	for f, ps := range p.byField {
		if len(ps) > 0 {
			fields = append(fields, f)
		}
	}
	slices.Sort(fields)
	return fields
}

// Empty reports whether no positions are recorded.
func (p *PhraseIndexes) Empty() bool {
	return len(p.Fields()) == 0
}

var (
	escaper   = strings.NewReplacer("%", "%25", ":", "%3A", ",", "%2C", "/", "%2F")
	unescaper = strings.NewReplacer("%3A", ":", "%2C", ",", "%2F", "/", "%25", "%")
)

// String serializes the indexes as
//
//	FIELD:recordId,start,end:recordId,start,end/FIELD2:...
//
// with fields sorted. Reserved characters in names and ids are percent-escaped.
func (p *PhraseIndexes) String() string {
	var sb strings.Builder
	for i, field := range p.Fields() {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(escaper.Replace(field))
		for _, pos := range p.byField[field] {
			sb.WriteByte(':')
			sb.WriteString(escaper.Replace(pos.RecordID))
			sb.WriteByte(',')
			sb.WriteString(strconv.Itoa(pos.Start))
			sb.WriteByte(',')
			sb.WriteString(strconv.Itoa(pos.End))
		}
	}
	return sb.String()
}

// ParsePhraseIndexes parses the String form.
func ParsePhraseIndexes(s string) (*PhraseIndexes, error) {
	p := NewPhraseIndexes()
	if s == "" {
		return p, nil
	}
	for _, group := range strings.Split(s, "/") {
		parts := strings.Split(group, ":")
		field := unescaper.Replace(parts[0])
		if field == "" {
			return nil, fmt.Errorf("phrase indexes: empty field in %q", group)
		}
		for _, triple := range parts[1:] {
			fields := strings.Split(triple, ",")
			if len(fields) != 3 {
				return nil, fmt.Errorf("phrase indexes: malformed position %q", triple)
			}
			start, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("phrase indexes: start offset %q: %w", fields[1], err)
			}
			end, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("phrase indexes: end offset %q: %w", fields[2], err)
			}
			p.Add(field, unescaper.Replace(fields[0]), start, end)
		}
	}
	return p, nil
}

// TermFrequencyList holds the token offsets of each term, per record.
type TermFrequencyList struct {
	offsets map[string]map[string][]int // term -> recordID -> sorted offsets
}

// NewTermFrequencyList returns an empty list.
func NewTermFrequencyList() *TermFrequencyList {
	return &TermFrequencyList{offsets: make(map[string]map[string][]int)}
}

// Add records offsets of term within recordID.
func (l *TermFrequencyList) Add(term, recordID string, offsets ...int) {
	byRecord, ok := l.offsets[term]
	if !ok {
		byRecord = make(map[string][]int)
		l.offsets[term] = byRecord
	}
	merged := append(byRecord[recordID], offsets...)
	slices.Sort(merged)
	byRecord[recordID] = slices.Compact(merged)
}

// Offsets returns the sorted offsets of term within recordID.
func (l *TermFrequencyList) Offsets(term, recordID string) []int {
	if l == nil {
		return nil
	}
	return l.offsets[term][recordID]
}

// RecordIDs returns the records containing term, sorted.
func (l *TermFrequencyList) RecordIDs(term string) []string {
	if l == nil {
		return nil
	}
	ids := make([]string, 0, len(l.offsets[term]))
	for id := range l.offsets[term] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Terms returns every term in the list, sorted.
func (l *TermFrequencyList) Terms() []string {
	if l == nil {
		return nil
	}
	terms := make([]string, 0, len(l.offsets))
	for term := range l.offsets {
		terms = append(terms, term)
	}
	slices.Sort(terms)
	return terms
}

// Map is the term offset structure threaded through evaluation.
type Map struct {
	frequencies map[string]*TermFrequencyList
	phrases     *PhraseIndexes
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{
		frequencies: make(map[string]*TermFrequencyList),
		phrases:     NewPhraseIndexes(),
	}
}

// ForCall returns a map sharing m's term-frequency lists, with no phrase
// positions. Each evaluation call records into its own view, so positions
// never carry over between calls. m may be nil.
func (m *Map) ForCall() *Map {
	view := NewMap()
	if m != nil {
		maps.Copy(view.frequencies, m.frequencies)
	}
	return view
}

// PutTermFrequencies sets the term-frequency list of field.
func (m *Map) PutTermFrequencies(field string, list *TermFrequencyList) {
	m.frequencies[field] = list
}

// TermFrequencies returns the list for field, or nil.
func (m *Map) TermFrequencies(field string) *TermFrequencyList {
	if m == nil {
		return nil
	}
	return m.frequencies[field]
}

// AddPosition records a phrase hit for field.
func (m *Map) AddPosition(field, recordID string, start, end int) {
	m.phrases.Add(field, recordID, start, end)
}

// PhraseIndexes returns the recorded phrase indexes. Callers must not modify
// the result.
func (m *Map) PhraseIndexes() *PhraseIndexes {
	if m == nil {
		return nil
	}
	return m.phrases
}

// Positions returns the phrase positions recorded for field.
func (m *Map) Positions(field string) []Position {
	return m.PhraseIndexes().Positions(field)
}

// HasPhraseIndexes reports whether any phrase position was recorded.
func (m *Map) HasPhraseIndexes() bool {
	return m != nil && !m.phrases.Empty()
}
