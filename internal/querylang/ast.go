// Package querylang models filter expressions as a tree of nodes and parses
// them from their textual form.
//
// The node set is closed: Script, Identifier, Literal, Comparison, Arithmetic,
// And, Or, Not, Function and Reference. Every node records its parent so that
// rewrite passes can substitute a subtree in place with ReplaceChild instead of
// rebuilding its ancestors.
//
// This package MUST NOT evaluate expressions or plan scans. It only knows
// about structure.
package querylang

import (
	"strconv"
	"strings"
)

// Node is the interface for all AST nodes.
// The marker method prevents external types from implementing Node.
type Node interface {
	node()

	// Accept dispatches to the variant-specific method of v.
	Accept(v Visitor, data any) any

	// Parent returns the node this node is attached to, or nil for a root.
	Parent() Node

	// Children returns a snapshot of the direct children in order.
	// Mutating the returned slice does not change the node.
	Children() []Node

	// String renders the node as parseable source.
	String() string

	setParent(p Node)
}

// link holds the parent pointer shared by every node.
type link struct {
	parent Node
}

func (l *link) node()            {}
func (l *link) Parent() Node     { return l.parent }
func (l *link) setParent(p Node) { l.parent = p }

// adopt attaches child to parent, detaching it from any previous parent.
func adopt(parent, child Node) {
	if child == nil {
		return
	}
	if prev := child.Parent(); prev != nil && prev != parent {
		_ = ReplaceChild(prev, child, nil)
	}
	child.setParent(parent)
}

// Script is the root of a parsed expression. Child is nil for an empty script.
type Script struct {
	link
	Child Node
}

// NewScript returns a Script owning child.
func NewScript(child Node) *Script {
	s := &Script{}
	s.Child = child
	adopt(s, child)
	return s
}

func (s *Script) Accept(v Visitor, data any) any { return v.VisitScript(s, data) }

func (s *Script) Children() []Node {
	if s.Child == nil {
		return nil
	}
	return []Node{s.Child}
}

func (s *Script) String() string {
	if s.Child == nil {
		return ""
	}
	return s.Child.String()
}

// Identifier names a field.
type Identifier struct {
	link
	Name string
}

// NewIdentifier returns an identifier for the named field.
func NewIdentifier(name string) *Identifier {
	return &Identifier{Name: name}
}

func (n *Identifier) Accept(v Visitor, data any) any { return v.VisitIdentifier(n, data) }
func (n *Identifier) Children() []Node               { return nil }
func (n *Identifier) String() string                 { return n.Name }

// LiteralKind identifies the type of a Literal.
type LiteralKind int

const (
	LitNull LiteralKind = iota
	LitBool
	LitInt
	LitFloat
	LitString
)

func (k LiteralKind) String() string {
	switch k {
	case LitNull:
		return "null"
	case LitBool:
		return "bool"
	case LitInt:
		return "int"
	case LitFloat:
		return "float"
	case LitString:
		return "string"
	default:
		return "unknown"
	}
}

// Literal is a constant value. Only the field matching Kind is meaningful.
type Literal struct {
	link
	Kind  LiteralKind
	Bool  bool
	Int   int64
	Float float64
	Str   string
}

// NullLit returns a null literal.
func NullLit() *Literal { return &Literal{Kind: LitNull} }

// BoolLit returns a boolean literal.
func BoolLit(b bool) *Literal { return &Literal{Kind: LitBool, Bool: b} }

// IntLit returns an integer literal.
func IntLit(n int64) *Literal { return &Literal{Kind: LitInt, Int: n} }

// FloatLit returns a floating point literal.
func FloatLit(f float64) *Literal { return &Literal{Kind: LitFloat, Float: f} }

// StringLit returns a string literal.
func StringLit(s string) *Literal { return &Literal{Kind: LitString, Str: s} }

func (n *Literal) Accept(v Visitor, data any) any { return v.VisitLiteral(n, data) }
func (n *Literal) Children() []Node               { return nil }

// Text returns the literal's value as plain text, without quoting.
func (n *Literal) Text() string {
	switch n.Kind {
	case LitBool:
		return strconv.FormatBool(n.Bool)
	case LitInt:
		return strconv.FormatInt(n.Int, 10)
	case LitFloat:
		return formatFloat(n.Float)
	case LitString:
		return n.Str
	default:
		return "null"
	}
}

func (n *Literal) String() string {
	if n.Kind == LitString {
		return quote(n.Str)
	}
	return n.Text()
}

// formatFloat renders f so that it re-parses as a float rather than an int.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}
	return s
}

// quote renders s as a single-quoted string literal.
func quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '\'':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case 0:
			sb.WriteString(`\0`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}

// CompareOp is a comparison operator.
type CompareOp int

const (
	OpEQ CompareOp = iota
	OpNE
	OpLT
	OpGT
	OpLE
	OpGE
	OpMatches    // =~
	OpNotMatches // !~
)

func (op CompareOp) String() string {
	switch op {
	case OpEQ:
		return "=="
	case OpNE:
		return "!="
	case OpLT:
		return "<"
	case OpGT:
		return ">"
	case OpLE:
		return "<="
	case OpGE:
		return ">="
	case OpMatches:
		return "=~"
	case OpNotMatches:
		return "!~"
	default:
		return "?"
	}
}

// Negate returns the operator with the opposite truth value for present fields.
func (op CompareOp) Negate() CompareOp {
	switch op {
	case OpEQ:
		return OpNE
	case OpNE:
		return OpEQ
	case OpLT:
		return OpGE
	case OpGT:
		return OpLE
	case OpLE:
		return OpGT
	case OpGE:
		return OpLT
	case OpMatches:
		return OpNotMatches
	default:
		return OpMatches
	}
}

// Comparison compares two operands. In practice one side is an Identifier
// (possibly inside Arithmetic) and the other a Literal.
type Comparison struct {
	link
	Op          CompareOp
	Left, Right Node
}

// NewComparison returns a comparison owning both operands.
func NewComparison(op CompareOp, left, right Node) *Comparison {
	c := &Comparison{Op: op, Left: left, Right: right}
	adopt(c, left)
	adopt(c, right)
	return c
}

// EqNull returns FIELD == null.
func EqNull(field string) *Comparison {
	return NewComparison(OpEQ, NewIdentifier(field), NullLit())
}

func (n *Comparison) Accept(v Visitor, data any) any { return v.VisitComparison(n, data) }
func (n *Comparison) Children() []Node               { return []Node{n.Left, n.Right} }

func (n *Comparison) String() string {
	return operand(n.Left, precArith) + " " + n.Op.String() + " " + operand(n.Right, precArith)
}

// ArithOp is an arithmetic operator.
type ArithOp int

const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
)

func (op ArithOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	default:
		return "?"
	}
}

func (op ArithOp) multiplicative() bool {
	return op == OpMul || op == OpDiv || op == OpMod
}

// Arithmetic applies a binary arithmetic operator.
type Arithmetic struct {
	link
	Op          ArithOp
	Left, Right Node
}

// NewArithmetic returns an arithmetic node owning both operands.
func NewArithmetic(op ArithOp, left, right Node) *Arithmetic {
	a := &Arithmetic{Op: op, Left: left, Right: right}
	adopt(a, left)
	adopt(a, right)
	return a
}

func (n *Arithmetic) Accept(v Visitor, data any) any { return v.VisitArithmetic(n, data) }
func (n *Arithmetic) Children() []Node               { return []Node{n.Left, n.Right} }

func (n *Arithmetic) String() string {
	p := precedence(n)
	// Left-associative: the right operand needs parens at equal precedence.
	return operand(n.Left, p) + " " + n.Op.String() + " " + operand(n.Right, p+1)
}

// And is the logical conjunction of its terms.
type And struct {
	link
	Terms []Node
}

// NewAnd returns a conjunction owning terms.
func NewAnd(terms ...Node) *And {
	a := &And{}
	a.SetTerms(terms)
	return a
}

// SetTerms replaces the terms, adopting each one.
func (n *And) SetTerms(terms []Node) {
	for _, t := range n.Terms {
		if t != nil && t.Parent() == n {
			t.setParent(nil)
		}
	}
	n.Terms = terms
	for _, t := range terms {
		adopt(n, t)
	}
}

func (n *And) Accept(v Visitor, data any) any { return v.VisitAnd(n, data) }
func (n *And) Children() []Node               { return append([]Node(nil), n.Terms...) }
func (n *And) String() string                 { return join(n.Terms, " && ", precAnd) }

// Or is the logical disjunction of its terms.
type Or struct {
	link
	Terms []Node
}

// NewOr returns a disjunction owning terms.
func NewOr(terms ...Node) *Or {
	o := &Or{}
	o.SetTerms(terms)
	return o
}

// SetTerms replaces the terms, adopting each one.
func (n *Or) SetTerms(terms []Node) {
	for _, t := range n.Terms {
		if t != nil && t.Parent() == n {
			t.setParent(nil)
		}
	}
	n.Terms = terms
	for _, t := range terms {
		adopt(n, t)
	}
}

func (n *Or) Accept(v Visitor, data any) any { return v.VisitOr(n, data) }
func (n *Or) Children() []Node               { return append([]Node(nil), n.Terms...) }
func (n *Or) String() string                 { return join(n.Terms, " || ", precOr) }

// Not is logical negation.
type Not struct {
	link
	Term Node
}

// NewNot returns a negation owning term.
func NewNot(term Node) *Not {
	n := &Not{Term: term}
	adopt(n, term)
	return n
}

func (n *Not) Accept(v Visitor, data any) any { return v.VisitNot(n, data) }

func (n *Not) Children() []Node {
	if n.Term == nil {
		return nil
	}
	return []Node{n.Term}
}

func (n *Not) String() string {
	if n.Term == nil {
		return "!()"
	}
	switch n.Term.(type) {
	case *Identifier, *Literal, *Function, *Reference:
		return "!" + n.Term.String()
	default:
		return "!(" + n.Term.String() + ")"
	}
}

// Function is a namespaced function call such as filter:isNull(FIELD).
type Function struct {
	link
	Namespace string
	Name      string
	Args      []Node
}

// NewFunction returns a function call owning args.
func NewFunction(namespace, name string, args ...Node) *Function {
	f := &Function{Namespace: namespace, Name: name, Args: args}
	for _, a := range args {
		adopt(f, a)
	}
	return f
}

// QualifiedName returns "namespace:name", or just the name without a namespace.
func (n *Function) QualifiedName() string {
	if n.Namespace == "" {
		return n.Name
	}
	return n.Namespace + ":" + n.Name
}

func (n *Function) Accept(v Visitor, data any) any { return v.VisitFunction(n, data) }
func (n *Function) Children() []Node               { return append([]Node(nil), n.Args...) }

func (n *Function) String() string {
	parts := make([]string, len(n.Args))
	for i, a := range n.Args {
		parts[i] = a.String()
	}
	return n.QualifiedName() + "(" + strings.Join(parts, ", ") + ")"
}

// Reference is a parenthesized grouping. It has no semantic effect.
type Reference struct {
	link
	Term Node
}

// NewReference returns a grouping owning term.
func NewReference(term Node) *Reference {
	r := &Reference{Term: term}
	adopt(r, term)
	return r
}

func (n *Reference) Accept(v Visitor, data any) any { return v.VisitReference(n, data) }

func (n *Reference) Children() []Node {
	if n.Term == nil {
		return nil
	}
	return []Node{n.Term}
}

func (n *Reference) String() string {
	if n.Term == nil {
		return "()"
	}
	return "(" + n.Term.String() + ")"
}

// Precedence levels used when rendering, lowest first.
const (
	precOr = iota + 1
	precAnd
	precNot
	precCompare
	precArith
	precMul
	precPrimary
)

func precedence(n Node) int {
	switch e := n.(type) {
	case *Or:
		return precOr
	case *And:
		return precAnd
	case *Not:
		return precNot
	case *Comparison:
		return precCompare
	case *Arithmetic:
		if e.Op.multiplicative() {
			return precMul
		}
		return precArith
	default:
		return precPrimary
	}
}

// operand renders n, adding parentheses when it binds looser than min.
func operand(n Node, min int) string {
	if n == nil {
		return "null"
	}
	if precedence(n) < min {
		return "(" + n.String() + ")"
	}
	return n.String()
}

func join(terms []Node, sep string, prec int) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = operand(t, prec+1)
	}
	return strings.Join(parts, sep)
}
