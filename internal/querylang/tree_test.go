package querylang

import (
	"errors"
	"testing"
)

func TestReplaceChild(t *testing.T) {
	script := MustParse("A == 1 && B == 2")
	and := script.Child.(*And)
	old := and.Terms[1]
	repl := EqNull("C")

	if err := ReplaceChild(and, old, repl); err != nil {
		t.Fatalf("ReplaceChild: %v", err)
	}
	if got := script.String(); got != "A == 1 && C == null" {
		t.Errorf("got %q", got)
	}
	if old.Parent() != nil {
		t.Error("replaced child should be detached")
	}
	if repl.Parent() != and {
		t.Error("replacement should be attached to the junction")
	}
}

func TestReplaceChildRemove(t *testing.T) {
	script := MustParse("A == 1 && B == 2 && C == 3")
	and := script.Child.(*And)
	if err := ReplaceChild(and, and.Terms[1], nil); err != nil {
		t.Fatalf("ReplaceChild: %v", err)
	}
	if got := script.String(); got != "A == 1 && C == 3" {
		t.Errorf("got %q", got)
	}
}

func TestReplaceChildRoot(t *testing.T) {
	script := MustParse("filter:isNull(A)")
	if err := ReplaceChild(script, script.Child, EqNull("A")); err != nil {
		t.Fatalf("ReplaceChild: %v", err)
	}
	if got := script.String(); got != "A == null" {
		t.Errorf("got %q", got)
	}
}

func TestReplaceChildMovesNode(t *testing.T) {
	left := MustParse("A == 1 && B == 2").Child.(*And)
	right := MustParse("C == 3 || D == 4").Child.(*Or)

	moved := left.Terms[0]
	if err := ReplaceChild(right, right.Terms[0], moved); err != nil {
		t.Fatalf("ReplaceChild: %v", err)
	}
	if got := left.String(); got != "B == 2" {
		t.Errorf("source junction = %q, want the moved node removed", got)
	}
	if got := right.String(); got != "A == 1 || D == 4" {
		t.Errorf("target junction = %q", got)
	}
	if moved.Parent() != right {
		t.Error("moved node should have exactly one parent")
	}
}

func TestReplaceChildNotFound(t *testing.T) {
	and := MustParse("A == 1 && B == 2").Child.(*And)
	err := ReplaceChild(and, EqNull("Z"), EqNull("Y"))
	if !errors.Is(err, ErrChildNotFound) {
		t.Errorf("expected ErrChildNotFound, got %v", err)
	}
	if err := ReplaceChild(nil, and, nil); !errors.Is(err, ErrNilNode) {
		t.Errorf("expected ErrNilNode, got %v", err)
	}
}

func TestCopy(t *testing.T) {
	orig := MustParse("(A == 1 || filter:isNull(B)) && !(C =~ 'x.*') && D + 1 > 2.5")
	clone := Copy(orig).(*Script)

	if clone.String() != orig.String() {
		t.Fatalf("copy renders %q, want %q", clone.String(), orig.String())
	}
	if clone == orig || clone.Child == orig.Child {
		t.Fatal("copy shares nodes with the original")
	}
	if clone.Parent() != nil {
		t.Error("copy should have no parent")
	}

	// Mutating the copy leaves the original untouched.
	and := clone.Child.(*And)
	if err := ReplaceChild(and, and.Terms[0], EqNull("Z")); err != nil {
		t.Fatal(err)
	}
	if orig.String() == clone.String() {
		t.Error("mutation of copy leaked into original")
	}

	origIDs := Identifiers(orig)
	cloneIDs := Identifiers(Copy(orig))
	if len(origIDs) != len(cloneIDs) {
		t.Fatalf("identifier count differs: %d vs %d", len(origIDs), len(cloneIDs))
	}
	for i := range origIDs {
		if origIDs[i] == cloneIDs[i] {
			t.Errorf("identifier %d shared between copy and original", i)
		}
	}
}

func TestFlattenJunction(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want string
	}{
		{
			name: "splices same kind through reference",
			node: NewAnd(
				EqNull("A"),
				NewReference(NewAnd(EqNull("B"), EqNull("C"))),
				NewOr(EqNull("D"), EqNull("E")),
			),
			want: "A == null && B == null && C == null && (D == null || E == null)",
		},
		{
			name: "one level only",
			node: NewOr(
				EqNull("A"),
				NewOr(EqNull("B"), NewOr(EqNull("C"), EqNull("D"))),
			),
			want: "A == null || B == null || (C == null || D == null)",
		},
		{
			name: "other kinds untouched",
			node: NewNot(NewAnd(EqNull("A"), EqNull("B"))),
			want: "!(A == null && B == null)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := FlattenJunction(tc.node)
			if got.String() != tc.want {
				t.Errorf("got %q, want %q", got.String(), tc.want)
			}
			for _, c := range got.Children() {
				if c.Parent() != got {
					t.Errorf("child %s has parent %v", c, c.Parent())
				}
			}
		})
	}
}

func TestDereference(t *testing.T) {
	cmp := EqNull("A")
	n := NewReference(NewReference(cmp))
	if Dereference(n) != cmp {
		t.Error("expected nested references to be stripped")
	}
	if Dereference(cmp) != cmp {
		t.Error("non-reference should be returned as is")
	}
}
