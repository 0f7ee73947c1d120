package querylang

// Visitor has one method per node variant. Node.Accept dispatches to the
// matching method; the data argument is an accumulator threaded through the
// traversal and the return value is visitor-defined.
type Visitor interface {
	VisitScript(n *Script, data any) any
	VisitIdentifier(n *Identifier, data any) any
	VisitLiteral(n *Literal, data any) any
	VisitComparison(n *Comparison, data any) any
	VisitArithmetic(n *Arithmetic, data any) any
	VisitAnd(n *And, data any) any
	VisitOr(n *Or, data any) any
	VisitNot(n *Not, data any) any
	VisitFunction(n *Function, data any) any
	VisitReference(n *Reference, data any) any
}

// Policy is the default behavior of a BaseVisitor for variants the concrete
// visitor does not override.
type Policy int

const (
	policyUnset Policy = iota

	// Descend visits every child with the same accumulator.
	Descend

	// Stop treats the node as a leaf and returns the accumulator unchanged.
	Stop
)

func (p Policy) String() string {
	switch p {
	case Descend:
		return "descend"
	case Stop:
		return "stop"
	default:
		return "unset"
	}
}

// BaseVisitor supplies the default handlers. A concrete visitor embeds it,
// sets Self to itself so descent re-enters the concrete methods, and picks a
// Policy explicitly:
//
//	v := &myVisitor{}
//	v.BaseVisitor = querylang.BaseVisitor{Self: v, Policy: querylang.Stop}
//
// Using a BaseVisitor whose Policy was never set panics.
type BaseVisitor struct {
	Self   Visitor
	Policy Policy
}

func (b BaseVisitor) fallback(n Node, data any) any {
	switch b.Policy {
	case Descend:
		return ChildrenAccept(n, b.Self, data)
	case Stop:
		return data
	default:
		panic("querylang: visitor traversal policy not set")
	}
}

func (b BaseVisitor) VisitScript(n *Script, data any) any         { return b.fallback(n, data) }
func (b BaseVisitor) VisitIdentifier(n *Identifier, data any) any { return b.fallback(n, data) }
func (b BaseVisitor) VisitLiteral(n *Literal, data any) any       { return b.fallback(n, data) }
func (b BaseVisitor) VisitComparison(n *Comparison, data any) any { return b.fallback(n, data) }
func (b BaseVisitor) VisitArithmetic(n *Arithmetic, data any) any { return b.fallback(n, data) }
func (b BaseVisitor) VisitAnd(n *And, data any) any               { return b.fallback(n, data) }
func (b BaseVisitor) VisitOr(n *Or, data any) any                 { return b.fallback(n, data) }
func (b BaseVisitor) VisitNot(n *Not, data any) any               { return b.fallback(n, data) }
func (b BaseVisitor) VisitFunction(n *Function, data any) any     { return b.fallback(n, data) }
func (b BaseVisitor) VisitReference(n *Reference, data any) any   { return b.fallback(n, data) }

// ChildrenAccept visits each child of n in order with the same data and
// returns data. The children are snapshotted first, so a visitor may replace
// the child it is visiting.
func ChildrenAccept(n Node, v Visitor, data any) any {
	for _, c := range n.Children() {
		if c != nil {
			c.Accept(v, data)
		}
	}
	return data
}

// identifierCollector gathers identifiers in traversal order.
type identifierCollector struct {
	BaseVisitor
	found []*Identifier
}

func (c *identifierCollector) VisitIdentifier(n *Identifier, data any) any {
	c.found = append(c.found, n)
	return data
}

// Identifiers returns every identifier under n, in traversal order.
func Identifiers(n Node) []*Identifier {
	if n == nil {
		return nil
	}
	c := &identifierCollector{}
	c.BaseVisitor = BaseVisitor{Self: c, Policy: Descend}
	n.Accept(c, nil)
	return c.found
}

// termCounter counts comparison and function leaves.
type termCounter struct {
	BaseVisitor
	count int
}

func (c *termCounter) VisitComparison(n *Comparison, data any) any {
	c.count++
	return data
}

func (c *termCounter) VisitFunction(n *Function, data any) any {
	c.count++
	return data
}

// TermCount returns the number of comparisons and function calls in n.
// Arguments of a function are not counted separately.
func TermCount(n Node) int {
	if n == nil {
		return 0
	}
	c := &termCounter{}
	c.BaseVisitor = BaseVisitor{Self: c, Policy: Descend}
	n.Accept(c, nil)
	return c.count
}
