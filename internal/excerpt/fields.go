// Package excerpt attaches text excerpts to matched documents. Phrase
// positions recorded during evaluation are widened by a per-field window
// and looked up in the store, which assembles the text from the record's
// term-frequency entries.
package excerpt

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidFields is returned by ParseFields.
var ErrInvalidFields = errors.New("invalid excerpt fields")

// Fields maps a field to its excerpt window: the number of tokens added on
// each side of a phrase.
type Fields map[string]int

// ParseFields parses "FIELD/window,FIELD2/window". Whitespace around
// entries is ignored. The empty string yields no fields.
func ParseFields(s string) (Fields, error) {
	f := make(Fields)
	for entry := range strings.SplitSeq(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		field, window, ok := strings.Cut(entry, "/")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("%w: %q: expected FIELD/window", ErrInvalidFields, entry)
		}
		n, err := strconv.Atoi(strings.TrimSpace(window))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q: window must be a non-negative integer", ErrInvalidFields, entry)
		}
		f[field] = n
	}
	return f, nil
}

// Names returns the configured fields, sorted.
func (f Fields) Names() []string {
	return slices.Sorted(maps.Keys(f))
}

func (f Fields) String() string {
	parts := make([]string, 0, len(f))
	for _, name := range f.Names() {
		parts = append(parts, name+"/"+strconv.Itoa(f[name]))
	}
	return strings.Join(parts, ",")
}

// Widen grows the inclusive phrase [start, end] by window tokens on each
// side and returns the half-open token range to fetch. The start is clamped
// at zero; the end is not clamped.
func Widen(start, end, window int) (int, int) {
	if start <= window {
		start = 0
	} else {
		start -= window
	}
	return start, end + window + 1
}
