package query

import (
	"fmt"
	"slices"
	"strings"

	"sieve/internal/store"
)

// PlanUnit is one independently executable part of a plan: ranges scanned
// in key order through the same stages and column-family allowlist.
type PlanUnit struct {
	Ranges         []store.Range `msgpack:"r" json:"ranges"`
	Stages         []store.Stage `msgpack:"s" json:"stages"`
	ColumnFamilies []string      `msgpack:"c,omitempty" json:"columnFamilies,omitempty"`

	// LastKey is the last key the unit produced, if any.
	LastKey *store.Key `msgpack:"l,omitempty" json:"lastKey,omitempty"`
}

// ScanPlan is a compiled query.
type ScanPlan struct {
	// Query is the normalised expression the expression stage evaluates.
	Query string     `json:"query"`
	Units []PlanUnit `json:"units"`
}

// Clone returns a deep copy of u.
func (u PlanUnit) Clone() PlanUnit {
	c := PlanUnit{
		Ranges:         slices.Clone(u.Ranges),
		Stages:         make([]store.Stage, len(u.Stages)),
		ColumnFamilies: slices.Clone(u.ColumnFamilies),
	}
	for i, st := range u.Stages {
		st.Options = cloneOptions(st.Options)
		c.Stages[i] = st
	}
	if u.LastKey != nil {
		k := *u.LastKey
		c.LastKey = &k
	}
	return c
}

func cloneOptions(opts map[string]string) map[string]string {
	if opts == nil {
		return nil
	}
	out := make(map[string]string, len(opts))
	for k, v := range opts {
		out[k] = v
	}
	return out
}

// Remaining returns the part of u still to be scanned: ranges that end at
// or before LastKey are dropped and the range containing it starts just
// after it.
func (u PlanUnit) Remaining() PlanUnit {
	c := u.Clone()
	if u.LastKey == nil {
		return c
	}
	c.Ranges = c.Ranges[:0]
	for _, r := range store.SortRanges(u.Ranges) {
		if rest, ok := r.After(*u.LastKey); ok {
			c.Ranges = append(c.Ranges, rest)
		}
	}
	return c
}

// Request returns the scan request of the remaining part of u.
func (u PlanUnit) Request() store.ScanRequest {
	rest := u.Remaining()
	return store.ScanRequest{
		Ranges:         rest.Ranges,
		Stages:         rest.Stages,
		ColumnFamilies: rest.ColumnFamilies,
	}
}

// Explain renders the plan for humans.
func (p *ScanPlan) Explain() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "query: %s\n", p.Query)
	for i, u := range p.Units {
		fmt.Fprintf(&sb, "unit %d:\n", i)
		for _, r := range u.Ranges {
			fmt.Fprintf(&sb, "  range   %s\n", r)
		}
		for _, st := range u.Stages {
			fmt.Fprintf(&sb, "  stage   %s\n", st)
		}
		if len(u.ColumnFamilies) > 0 {
			fmt.Fprintf(&sb, "  columns %s\n", strings.Join(u.ColumnFamilies, ", "))
		}
		if u.LastKey != nil {
			fmt.Fprintf(&sb, "  after   %s\n", u.LastKey)
		}
	}
	return sb.String()
}

// splitUnit divides the ranges of u into units of at most n ranges each.
func splitUnit(u PlanUnit, n int) []PlanUnit {
	if n <= 0 || len(u.Ranges) <= n {
		return []PlanUnit{u}
	}
	var units []PlanUnit
	for chunk := range slices.Chunk(u.Ranges, n) {
		part := u.Clone()
		part.Ranges = slices.Clone(chunk)
		units = append(units, part)
	}
	return units
}
