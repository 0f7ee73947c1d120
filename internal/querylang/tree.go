package querylang

import "slices"

// ReplaceChild substitutes repl for old among parent's children.
// old is detached (its parent cleared) before repl is attached. A nil repl
// removes old: it is dropped from a junction or argument list, and leaves an
// empty slot on single-child nodes.
func ReplaceChild(parent, old, repl Node) error {
	if parent == nil || old == nil {
		return ErrNilNode
	}
	if repl != nil {
		if prev := repl.Parent(); prev != nil && prev != parent {
			if err := ReplaceChild(prev, repl, nil); err != nil {
				return err
			}
		}
	}

	switch p := parent.(type) {
	case *Script:
		if p.Child != old {
			return ErrChildNotFound
		}
		p.Child = repl
	case *Comparison:
		switch old {
		case p.Left:
			p.Left = repl
		case p.Right:
			p.Right = repl
		default:
			return ErrChildNotFound
		}
	case *Arithmetic:
		switch old {
		case p.Left:
			p.Left = repl
		case p.Right:
			p.Right = repl
		default:
			return ErrChildNotFound
		}
	case *And:
		terms, err := replaceIn(p.Terms, old, repl)
		if err != nil {
			return err
		}
		p.Terms = terms
	case *Or:
		terms, err := replaceIn(p.Terms, old, repl)
		if err != nil {
			return err
		}
		p.Terms = terms
	case *Function:
		args, err := replaceIn(p.Args, old, repl)
		if err != nil {
			return err
		}
		p.Args = args
	case *Not:
		if p.Term != old {
			return ErrChildNotFound
		}
		p.Term = repl
	case *Reference:
		if p.Term != old {
			return ErrChildNotFound
		}
		p.Term = repl
	default:
		return ErrChildNotFound
	}

	old.setParent(nil)
	if repl != nil {
		repl.setParent(parent)
	}
	return nil
}

func replaceIn(nodes []Node, old, repl Node) ([]Node, error) {
	i := slices.Index(nodes, old)
	if i < 0 {
		return nil, ErrChildNotFound
	}
	if repl == nil {
		return slices.Delete(nodes, i, i+1), nil
	}
	nodes[i] = repl
	return nodes, nil
}

// Copy returns a deep clone of n. The clone has no parent.
func Copy(n Node) Node {
	switch e := n.(type) {
	case nil:
		return nil
	case *Script:
		return NewScript(Copy(e.Child))
	case *Identifier:
		return NewIdentifier(e.Name)
	case *Literal:
		c := *e
		c.link = link{}
		return &c
	case *Comparison:
		return NewComparison(e.Op, Copy(e.Left), Copy(e.Right))
	case *Arithmetic:
		return NewArithmetic(e.Op, Copy(e.Left), Copy(e.Right))
	case *And:
		return NewAnd(copyAll(e.Terms)...)
	case *Or:
		return NewOr(copyAll(e.Terms)...)
	case *Not:
		return NewNot(Copy(e.Term))
	case *Function:
		return NewFunction(e.Namespace, e.Name, copyAll(e.Args)...)
	case *Reference:
		return NewReference(Copy(e.Term))
	default:
		return nil
	}
}

func copyAll(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = Copy(n)
	}
	return out
}

// Dereference strips grouping references around n.
func Dereference(n Node) Node {
	for {
		r, ok := n.(*Reference)
		if !ok || r.Term == nil {
			return n
		}
		n = r.Term
	}
}

// FlattenJunction splices, one level deep, every direct child of an And or Or
// that is itself a junction of the same kind once grouping references are
// stripped. Other nodes are returned untouched.
func FlattenJunction(n Node) Node {
	switch j := n.(type) {
	case *And:
		j.SetTerms(spliceSameKind(j.Terms, func(c Node) ([]Node, bool) {
			if a, ok := c.(*And); ok {
				return a.Terms, true
			}
			return nil, false
		}))
	case *Or:
		j.SetTerms(spliceSameKind(j.Terms, func(c Node) ([]Node, bool) {
			if o, ok := c.(*Or); ok {
				return o.Terms, true
			}
			return nil, false
		}))
	}
	return n
}

func spliceSameKind(terms []Node, same func(Node) ([]Node, bool)) []Node {
	out := make([]Node, 0, len(terms))
	for _, t := range terms {
		if inner, ok := same(Dereference(t)); ok {
			out = append(out, inner...)
			continue
		}
		out = append(out, t)
	}
	return out
}
