package querylang

import "strings"

// DNF (Disjunctive Normal Form) conversion for boolean expressions.
//
// DNF is an OR of ANDs: (A AND B) OR (C AND D) OR ...
// Each AND clause is called a "conjunction" or "branch".
//
// The scan-plan compiler uses DNF to find, per branch, which terms bind the
// key roles of a range and which are left for the expression filter.

// Term is a leaf of a conjunction: a comparison, function call or bare
// operand, optionally negated.
type Term struct {
	Node    Node
	Negated bool
}

// Conjunction represents a single AND clause in DNF form.
type Conjunction struct {
	Terms []Term
}

// DNF represents an expression in Disjunctive Normal Form.
// The expression matches if ANY conjunction matches (OR semantics).
type DNF struct {
	Branches []Conjunction
}

// ToDNF converts a boolean expression to Disjunctive Normal Form. Leaves are
// shared with the input tree, not copied. maxBranches bounds the expansion;
// zero or less means unbounded.
//
// Examples:
//   - "A == 1" -> 1 branch: {A == 1}
//   - "A == 1 && B == 2" -> 1 branch: {A == 1, B == 2}
//   - "A == 1 || B == 2" -> 2 branches: {A == 1}, {B == 2}
//   - "!(A == 1 || B == 2)" -> 1 branch: {!A == 1, !B == 2}
//   - "(A == 1 || B == 2) && C == 3" -> 2 branches:
//   - {A == 1, C == 3}
//   - {B == 2, C == 3}
func ToDNF(n Node, maxBranches int) (DNF, error) {
	d := dnfBuilder{max: maxBranches}
	branches := d.branches(n, false)
	if d.err != nil {
		return DNF{}, d.err
	}
	return DNF{Branches: branches}, nil
}

type dnfBuilder struct {
	max int
	err error
}

func (d *dnfBuilder) check(branches []Conjunction) []Conjunction {
	if d.max > 0 && len(branches) > d.max && d.err == nil {
		d.err = ErrDNFTooLarge
	}
	return branches
}

// branches converts n to a list of conjunctions. When negated is set the
// negation is pushed down with De Morgan's laws:
//
//	NOT (A AND B) = (NOT A) OR (NOT B)
//	NOT (A OR B)  = (NOT A) AND (NOT B)
//	NOT (NOT A)   = A
func (d *dnfBuilder) branches(n Node, negated bool) []Conjunction {
	if d.err != nil {
		return nil
	}
	switch e := n.(type) {
	case nil:
		return []Conjunction{{}}
	case *Script:
		return d.branches(e.Child, negated)
	case *Reference:
		return d.branches(e.Term, negated)
	case *Not:
		return d.branches(e.Term, !negated)
	case *And:
		if negated {
			return d.concat(e.Terms, true)
		}
		return d.cross(e.Terms, false)
	case *Or:
		if negated {
			return d.cross(e.Terms, true)
		}
		return d.concat(e.Terms, false)
	default:
		return []Conjunction{{Terms: []Term{{Node: n, Negated: negated}}}}
	}
}

// concat unions the branches of every term.
func (d *dnfBuilder) concat(terms []Node, negated bool) []Conjunction {
	var result []Conjunction
	for _, t := range terms {
		result = append(result, d.branches(t, negated)...)
		if d.check(result); d.err != nil {
			return nil
		}
	}
	return result
}

// cross computes the cross-product of the branches of every term.
// (A1 OR A2) AND (B1 OR B2) = (A1 AND B1) OR (A1 AND B2) OR (A2 AND B1) OR (A2 AND B2)
func (d *dnfBuilder) cross(terms []Node, negated bool) []Conjunction {
	result := []Conjunction{{}}
	for _, t := range terms {
		next := d.branches(t, negated)
		if d.err != nil {
			return nil
		}
		product := make([]Conjunction, 0, len(result)*len(next))
		for _, left := range result {
			for _, right := range next {
				merged := make([]Term, 0, len(left.Terms)+len(right.Terms))
				merged = append(merged, left.Terms...)
				merged = append(merged, right.Terms...)
				product = append(product, Conjunction{Terms: merged})
			}
		}
		result = d.check(product)
		if d.err != nil {
			return nil
		}
	}
	return result
}

// String renders the term; negated terms are wrapped in !( ).
func (t Term) String() string {
	if t.Negated {
		return "!(" + t.Node.String() + ")"
	}
	return t.Node.String()
}

// String returns a human-readable representation of the conjunction.
func (c Conjunction) String() string {
	parts := make([]string, len(c.Terms))
	for i, t := range c.Terms {
		parts[i] = t.String()
	}
	s := strings.Join(parts, " && ")
	if len(parts) > 1 {
		return "(" + s + ")"
	}
	return s
}

// String returns a human-readable representation of the DNF.
func (d DNF) String() string {
	parts := make([]string, len(d.Branches))
	for i, b := range d.Branches {
		parts[i] = b.String()
	}
	return strings.Join(parts, " || ")
}
