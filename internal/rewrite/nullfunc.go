// Package rewrite holds the tree passes applied to a parsed expression before
// it is evaluated or compiled into a scan plan.
package rewrite

import (
	"sieve/internal/querylang"
)

// Namespace and names of the filter functions rewritten by RewriteNullFunctions.
const (
	FilterNamespace = "filter"
	IsNull          = "isNull"
	IsNotNull       = "isNotNull"
)

// RewriteNullFunctions replaces filter:isNull and filter:isNotNull calls with
// primitive comparisons, in place:
//
//	filter:isNull(A)          -> A == null
//	filter:isNull(A || B)     -> A == null && B == null
//	filter:isNotNull(A)       -> !(A == null)
//	filter:isNotNull(A || B)  -> !(A == null) || !(B == null)
//
// A call without identifiers is removed. When a call expands to a junction,
// the nearest enclosing And/Or is flattened one level afterwards so that
// And(And(...)) and Or(Or(...)) do not survive. The pass only looks inside
// boolean structure; comparisons, arithmetic, literals and other function
// calls are left as they are. Applying it twice is the same as once.
func RewriteNullFunctions(script *querylang.Script) *querylang.Script {
	v := &nullFunctionRewriter{}
	v.BaseVisitor = querylang.BaseVisitor{Self: v, Policy: querylang.Stop}
	script.Accept(v, nil)
	return script
}

// nullFunctionRewriter returns true from a visit when a multi-field rewrite
// happened below the visited node and no junction has consumed it yet.
type nullFunctionRewriter struct {
	querylang.BaseVisitor
}

func (v *nullFunctionRewriter) visitChildren(n querylang.Node) bool {
	rebuilt := false
	for _, c := range n.Children() {
		if c == nil {
			continue
		}
		if r, _ := c.Accept(v, nil).(bool); r {
			rebuilt = true
		}
	}
	return rebuilt
}

func (v *nullFunctionRewriter) VisitScript(n *querylang.Script, _ any) any {
	return v.visitChildren(n)
}

func (v *nullFunctionRewriter) VisitReference(n *querylang.Reference, _ any) any {
	return v.visitChildren(n)
}

func (v *nullFunctionRewriter) VisitNot(n *querylang.Not, _ any) any {
	return v.visitChildren(n)
}

func (v *nullFunctionRewriter) VisitAnd(n *querylang.And, _ any) any {
	return v.visitJunction(n, len(n.Terms))
}

func (v *nullFunctionRewriter) VisitOr(n *querylang.Or, _ any) any {
	return v.visitJunction(n, len(n.Terms))
}

func (v *nullFunctionRewriter) visitJunction(n querylang.Node, before int) any {
	if v.visitChildren(n) {
		querylang.FlattenJunction(n)
	}
	if before > 0 && len(n.Children()) == 0 {
		remove(n)
	}
	// The flag is consumed here.
	return false
}

func (v *nullFunctionRewriter) VisitFunction(n *querylang.Function, _ any) any {
	if n.Namespace != FilterNamespace || (n.Name != IsNull && n.Name != IsNotNull) {
		return false
	}

	repl, multi := nullComparisons(n)
	if repl == nil {
		remove(n)
		return false
	}
	if parent := n.Parent(); parent != nil {
		_ = querylang.ReplaceChild(parent, n, repl)
	}
	return multi
}

// nullComparisons builds the replacement for an isNull/isNotNull call.
// It returns nil when the call names no fields, and reports whether more
// than one field was involved.
func nullComparisons(fn *querylang.Function) (querylang.Node, bool) {
	var ids []*querylang.Identifier
	for _, arg := range fn.Args {
		ids = append(ids, querylang.Identifiers(arg)...)
	}

	terms := make([]querylang.Node, 0, len(ids))
	for _, id := range ids {
		var term querylang.Node = querylang.EqNull(id.Name)
		if fn.Name == IsNotNull {
			term = querylang.NewNot(term)
		}
		terms = append(terms, term)
	}

	switch len(terms) {
	case 0:
		return nil, false
	case 1:
		return terms[0], false
	}
	if fn.Name == IsNotNull {
		return querylang.NewOr(terms...), true
	}
	return querylang.NewAnd(terms...), true
}

// remove detaches n from its parent. A negation, grouping or junction left
// without children is removed in turn; an emptied script stays empty.
func remove(n querylang.Node) {
	parent := n.Parent()
	if parent == nil {
		return
	}
	_ = querylang.ReplaceChild(parent, n, nil)

	switch parent.(type) {
	case *querylang.Not, *querylang.Reference, *querylang.And, *querylang.Or:
		if len(parent.Children()) == 0 {
			remove(parent)
		}
	}
}
