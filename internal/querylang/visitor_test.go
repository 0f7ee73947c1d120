package querylang

import (
	"slices"
	"testing"
)

// kindCounter records which variants it was dispatched to.
type kindCounter struct {
	BaseVisitor
	seen []string
}

func (c *kindCounter) VisitAnd(n *And, data any) any {
	c.seen = append(c.seen, "and")
	return ChildrenAccept(n, c, data)
}

func (c *kindCounter) VisitComparison(n *Comparison, data any) any {
	c.seen = append(c.seen, "cmp")
	return data
}

func (c *kindCounter) VisitFunction(n *Function, data any) any {
	c.seen = append(c.seen, "fn:"+n.Name)
	return data
}

func newKindCounter(p Policy) *kindCounter {
	c := &kindCounter{}
	c.BaseVisitor = BaseVisitor{Self: c, Policy: p}
	return c
}

func TestVisitorPolicy(t *testing.T) {
	script := MustParse("A == 1 && (B == 2 || !(f:g(C)))")

	t.Run("descend", func(t *testing.T) {
		c := newKindCounter(Descend)
		script.Accept(c, nil)
		want := []string{"and", "cmp", "cmp", "fn:g"}
		if !slices.Equal(c.seen, want) {
			t.Errorf("seen %v, want %v", c.seen, want)
		}
	})

	t.Run("stop", func(t *testing.T) {
		c := newKindCounter(Stop)
		script.Accept(c, nil)
		// The script root itself is a leaf under Stop.
		if len(c.seen) != 0 {
			t.Errorf("seen %v, want nothing", c.seen)
		}
		script.Child.Accept(c, nil)
		// And descends explicitly; the Reference child stops.
		want := []string{"and", "cmp"}
		if !slices.Equal(c.seen, want) {
			t.Errorf("seen %v, want %v", c.seen, want)
		}
	})

	t.Run("unset panics", func(t *testing.T) {
		c := &kindCounter{}
		c.BaseVisitor = BaseVisitor{Self: c}
		defer func() {
			if recover() == nil {
				t.Error("expected panic for unset policy")
			}
		}()
		script.Accept(c, nil)
	})
}

func TestVisitorAccumulator(t *testing.T) {
	c := newKindCounter(Descend)
	got := MustParse("A == 1").Accept(c, 42)
	if got != 42 {
		t.Errorf("default handlers should return the accumulator unchanged, got %v", got)
	}
}

func TestIdentifiers(t *testing.T) {
	ids := Identifiers(MustParse("A == 1 && filter:isNull(B || C) && D + E > 3"))
	var names []string
	for _, id := range ids {
		names = append(names, id.Name)
	}
	want := []string{"A", "B", "C", "D", "E"}
	if !slices.Equal(names, want) {
		t.Errorf("got %v, want %v", names, want)
	}
	if Identifiers(nil) != nil {
		t.Error("nil node should have no identifiers")
	}
}

func TestTermCount(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"A == 1", 1},
		{"A == 1 && B == 2", 2},
		{"A == 1 && filter:isNull(B || C) && !(D =~ 'x')", 3},
		{"(A == 1 || A == 2) && (B == 1 || B == 2)", 4},
		{"content:phrase(BODY, 'a', 'b')", 1},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := TermCount(MustParse(tc.input)); got != tc.want {
				t.Errorf("TermCount = %d, want %d", got, tc.want)
			}
		})
	}
}
