package rewrite

import (
	"sieve/internal/querylang"
)

// Flatten returns a flattened copy of n; n itself is not modified.
//
// Grouping references are dropped (the tree shape already carries grouping),
// nested junctions of the same kind are spliced into their parent at every
// depth, and single-term junctions are replaced by their term. Function
// arguments are left alone. The result evaluates exactly like the input.
func Flatten(n querylang.Node) querylang.Node {
	if n == nil {
		return nil
	}
	f := &flattener{}
	f.BaseVisitor = querylang.BaseVisitor{Self: f, Policy: querylang.Stop}
	return f.rebuild(querylang.Copy(n))
}

// Normalize applies the passes every expression goes through before it is
// evaluated or planned: flattening, then null-function rewriting.
func Normalize(script *querylang.Script) *querylang.Script {
	flat, _ := Flatten(script).(*querylang.Script)
	if flat == nil {
		flat = querylang.NewScript(nil)
	}
	return RewriteNullFunctions(flat)
}

// flattener returns the node that replaces the visited one. Leaves fall
// through to the Stop policy, which returns nil, meaning "unchanged".
type flattener struct {
	querylang.BaseVisitor
}

func (f *flattener) rebuild(n querylang.Node) querylang.Node {
	if out, ok := n.Accept(f, nil).(querylang.Node); ok && out != nil {
		return out
	}
	return n
}

func (f *flattener) VisitScript(n *querylang.Script, _ any) any {
	if n.Child != nil {
		if child := f.rebuild(n.Child); child != n.Child {
			_ = querylang.ReplaceChild(n, n.Child, child)
		}
	}
	return n
}

func (f *flattener) VisitReference(n *querylang.Reference, _ any) any {
	if n.Term == nil {
		return n
	}
	return f.rebuild(n.Term)
}

func (f *flattener) VisitNot(n *querylang.Not, _ any) any {
	if n.Term != nil {
		if term := f.rebuild(n.Term); term != n.Term {
			_ = querylang.ReplaceChild(n, n.Term, term)
		}
	}
	return n
}

func (f *flattener) VisitAnd(n *querylang.And, _ any) any {
	var terms []querylang.Node
	for _, t := range n.Children() {
		r := f.rebuild(t)
		if inner, ok := r.(*querylang.And); ok {
			terms = append(terms, inner.Children()...)
			continue
		}
		terms = append(terms, r)
	}
	if len(terms) == 1 {
		return terms[0]
	}
	n.SetTerms(terms)
	return n
}

func (f *flattener) VisitOr(n *querylang.Or, _ any) any {
	var terms []querylang.Node
	for _, t := range n.Children() {
		r := f.rebuild(t)
		if inner, ok := r.(*querylang.Or); ok {
			terms = append(terms, inner.Children()...)
			continue
		}
		terms = append(terms, r)
	}
	if len(terms) == 1 {
		return terms[0]
	}
	n.SetTerms(terms)
	return n
}
