// Package eval compiles filter expressions into predicates and evaluates them
// against one record at a time.
//
// Evaluation uses three-valued logic. A field that is absent never causes an
// error: it is simply an empty operand. Besides the match result, an
// evaluation produces evidence on the record's Document: the hit terms that
// caused the match (when the arithmetic tracks hits), whether the result is
// only partial, and the phrase positions recorded by content functions.
//
// A compiled Evaluation is immutable and may be shared between goroutines;
// all per-record state lives in the call.
package eval

import (
	"errors"
	"fmt"
	"regexp"

	"sieve/internal/querylang"
	"sieve/internal/rewrite"
)

// Compile errors.
var (
	ErrUnknownFunction     = errors.New("unknown function")
	ErrInvalidArguments    = errors.New("invalid function arguments")
	ErrMalformedComparison = errors.New("malformed comparison")
	ErrInvalidRegex        = errors.New("invalid regex")
)

// Options configure an Evaluation.
type Options struct {
	// Arithmetic compares values with literals. Defaults to DefaultArithmetic.
	Arithmetic Arithmetic

	// IncompleteFields are fields whose values may be missing from the
	// context. Terms over them resolve through Fallback and mark the result
	// PARTIAL.
	IncompleteFields []string

	// Fallback supplies values for incomplete fields. Optional.
	Fallback Fallback
}

// Evaluation is a compiled expression.
type Evaluation struct {
	script     *querylang.Script
	arith      Arithmetic
	incomplete map[string]bool
	fallback   Fallback

	comparisons map[*querylang.Comparison]comparisonPlan
	functions   map[*querylang.Function]function
}

// comparisonPlan is a comparison oriented as "field op literal".
type comparisonPlan struct {
	field querylang.Node // *Identifier or *Arithmetic
	lit   *querylang.Literal
	op    querylang.CompareOp
	re    *regexp.Regexp // set for =~ and !~
}

// Compile validates script and prepares it for evaluation. The script is
// copied; later changes to it do not affect the Evaluation. Expressions are
// expected to be normalized already (see rewrite.Normalize).
func Compile(script *querylang.Script, opts Options) (*Evaluation, error) {
	if script == nil {
		return nil, fmt.Errorf("compile: %w", querylang.ErrNilNode)
	}
	e := &Evaluation{
		script:      querylang.Copy(script).(*querylang.Script),
		arith:       opts.Arithmetic,
		incomplete:  make(map[string]bool, len(opts.IncompleteFields)),
		fallback:    opts.Fallback,
		comparisons: make(map[*querylang.Comparison]comparisonPlan),
		functions:   make(map[*querylang.Function]function),
	}
	if e.arith == nil {
		e.arith = DefaultArithmetic{}
	}
	for _, f := range opts.IncompleteFields {
		e.incomplete[f] = true
	}

	c := &compiler{ev: e}
	c.BaseVisitor = querylang.BaseVisitor{Self: c, Policy: querylang.Descend}
	e.script.Accept(c, nil)
	if c.err != nil {
		return nil, c.err
	}
	return e, nil
}

// CompileQuery parses and normalizes query, then compiles it.
func CompileQuery(query string, opts Options) (*Evaluation, error) {
	script, err := querylang.Parse(query)
	if err != nil {
		return nil, err
	}
	return Compile(rewrite.Normalize(script), opts)
}

// Script returns the compiled expression. Callers must not modify it.
func (e *Evaluation) Script() *querylang.Script {
	return e.script
}

// String returns the compiled expression as source.
func (e *Evaluation) String() string {
	return e.script.String()
}

// compiler validates every boolean-position node and records the prepared
// comparison and function plans.
type compiler struct {
	querylang.BaseVisitor
	ev  *Evaluation
	err error
}

func (c *compiler) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *compiler) VisitComparison(n *querylang.Comparison, data any) any {
	plan, err := planComparison(n)
	if err != nil {
		c.fail(err)
		return data
	}
	c.ev.comparisons[n] = plan
	return data
}

func (c *compiler) VisitFunction(n *querylang.Function, data any) any {
	fn, ok := builtins[n.QualifiedName()]
	if !ok {
		c.fail(fmt.Errorf("%w: %s", ErrUnknownFunction, n.QualifiedName()))
		return data
	}
	if err := fn.validate(n); err != nil {
		c.fail(fmt.Errorf("%s: %w", n.QualifiedName(), err))
		return data
	}
	c.ev.functions[n] = fn
	return data
}

func (c *compiler) VisitArithmetic(n *querylang.Arithmetic, data any) any {
	if err := checkArithmetic(n); err != nil {
		c.fail(err)
	}
	return data
}

func planComparison(n *querylang.Comparison) (comparisonPlan, error) {
	left := querylang.Dereference(n.Left)
	right := querylang.Dereference(n.Right)
	op := n.Op

	lit, ok := right.(*querylang.Literal)
	field := left
	if !ok {
		lit, ok = left.(*querylang.Literal)
		if !ok {
			return comparisonPlan{}, fmt.Errorf("%w: %s needs a literal operand", ErrMalformedComparison, n)
		}
		if op == querylang.OpMatches || op == querylang.OpNotMatches {
			return comparisonPlan{}, fmt.Errorf("%w: %s: pattern must be on the right", ErrMalformedComparison, n)
		}
		field = right
		op = mirror(op)
	}

	switch f := field.(type) {
	case *querylang.Identifier:
	case *querylang.Arithmetic:
		if err := checkArithmetic(f); err != nil {
			return comparisonPlan{}, err
		}
		if lit.Kind != querylang.LitInt && lit.Kind != querylang.LitFloat {
			return comparisonPlan{}, fmt.Errorf("%w: %s: arithmetic compares with numbers only", ErrMalformedComparison, n)
		}
	default:
		return comparisonPlan{}, fmt.Errorf("%w: %s needs a field operand", ErrMalformedComparison, n)
	}

	plan := comparisonPlan{field: field, lit: lit, op: op}
	switch op {
	case querylang.OpMatches, querylang.OpNotMatches:
		if lit.Kind != querylang.LitString {
			return comparisonPlan{}, fmt.Errorf("%w: %s: pattern must be a string", ErrMalformedComparison, n)
		}
		re, err := regexp.Compile("^(?:" + lit.Str + ")$")
		if err != nil {
			return comparisonPlan{}, fmt.Errorf("%w: %s: %v", ErrInvalidRegex, lit.Str, err)
		}
		plan.re = re
	case querylang.OpLT, querylang.OpGT, querylang.OpLE, querylang.OpGE:
		if lit.Kind == querylang.LitNull {
			return comparisonPlan{}, fmt.Errorf("%w: %s: null is not ordered", ErrMalformedComparison, n)
		}
	}
	return plan, nil
}

// mirror swaps the sides of an ordered operator: 1 < A is A > 1.
func mirror(op querylang.CompareOp) querylang.CompareOp {
	switch op {
	case querylang.OpLT:
		return querylang.OpGT
	case querylang.OpGT:
		return querylang.OpLT
	case querylang.OpLE:
		return querylang.OpGE
	case querylang.OpGE:
		return querylang.OpLE
	default:
		return op
	}
}

// checkArithmetic requires arithmetic operands to be identifiers, numbers or
// nested arithmetic.
func checkArithmetic(n *querylang.Arithmetic) error {
	for _, operand := range []querylang.Node{n.Left, n.Right} {
		switch o := querylang.Dereference(operand).(type) {
		case *querylang.Identifier:
		case *querylang.Literal:
			if o.Kind != querylang.LitInt && o.Kind != querylang.LitFloat {
				return fmt.Errorf("%w: %s: non-numeric operand %s", ErrMalformedComparison, n, o)
			}
		case *querylang.Arithmetic:
			if err := checkArithmetic(o); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %s: unsupported operand %s", ErrMalformedComparison, n, operand)
		}
	}
	return nil
}
