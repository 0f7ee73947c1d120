package eval

import (
	"math"
	"slices"

	"sieve/internal/document"
	"sieve/internal/querylang"
	"sieve/internal/termoffset"
)

// State says whether a match was computed from complete data.
type State string

const (
	StateFull    State = "FULL"
	StatePartial State = "PARTIAL"
)

// Result is the outcome of one evaluation call.
type Result struct {
	Matched bool
	State   State
	// PartialFields lists the incomplete fields the call had to resolve.
	PartialFields []string
	// HitTerms are the hits attached to the document. Empty unless the
	// arithmetic tracks hits and the record matched.
	HitTerms []document.HitTerm
	// PhraseIndexes are the positions phrase functions recorded during this
	// call. Nil unless the record matched with at least one position.
	PhraseIndexes *termoffset.PhraseIndexes
}

// hitTuple is a field value that satisfied a term.
type hitTuple struct {
	field string
	value Value
}

// call holds the state of one evaluation. It is never shared.
type call struct {
	ev      *Evaluation
	ctx     *Context
	track   bool
	hits    []hitTuple
	partial []string
	offsets *termoffset.Map // per-call view of ctx.Offsets
}

// Evaluate runs the expression against ctx. On a match it records evidence
// on doc, which may be nil:
//   - EVAL_STATE=PARTIAL when an incomplete field had to be resolved,
//   - HIT_TERM values when the arithmetic tracks hits,
//   - PHRASE_INDEXES_ATTRIBUTE when phrase functions recorded positions.
//
// Hits, partial fields and phrase positions belong to the call; ctx is only
// read, so nothing is carried over between calls.
func (e *Evaluation) Evaluate(ctx *Context, doc *document.Document) Result {
	if ctx == nil {
		ctx = NewContext()
	}
	c := &call{ev: e, ctx: ctx, track: e.arith.TracksHits(), offsets: ctx.Offsets.ForCall()}

	truth := c.eval(e.script)
	matched := truth == True || truth == Assumed
	res := Result{Matched: matched, State: StateFull}
	if len(c.partial) > 0 {
		res.State = StatePartial
		res.PartialFields = c.partialFields()
	}
	if !matched {
		return res
	}

	if c.track {
		res.HitTerms = c.hitTerms(doc)
	}
	if c.offsets.HasPhraseIndexes() {
		res.PhraseIndexes = c.offsets.PhraseIndexes()
	}
	if doc == nil {
		return res
	}

	if res.State == StatePartial {
		doc.Put(document.EvalStateAttr, document.Attribute{
			Value:      string(StatePartial),
			Visibility: doc.Visibility,
			Timestamp:  doc.Timestamp,
			ToKeep:     true,
		})
	}
	for _, h := range res.HitTerms {
		doc.Add(document.HitTermAttr, document.Attribute{
			Value:      h.String(),
			Visibility: h.Visibility,
			Timestamp:  doc.Timestamp,
			ToKeep:     true,
		})
	}
	if res.PhraseIndexes != nil {
		doc.Put(document.PhraseIndexesAttr, document.Attribute{
			Value:      res.PhraseIndexes.String(),
			Visibility: doc.Visibility,
			Timestamp:  doc.Timestamp,
		})
	}
	return res
}

// Match is Evaluate without a document.
func (e *Evaluation) Match(ctx *Context) bool {
	return e.Evaluate(ctx, nil).Matched
}

func (c *call) partialFields() []string {
	fields := slices.Clone(c.partial)
	slices.Sort(fields)
	return slices.Compact(fields)
}

// hitTerms resolves a visibility for every hit tuple: the source attribute
// first, then a document-wide FIELD:value lookup. Tuples with neither are
// dropped; their record was already filtered out of the document.
func (c *call) hitTerms(doc *document.Document) []document.HitTerm {
	seen := make(map[document.HitTerm]bool, len(c.hits))
	var out []document.HitTerm
	for _, h := range c.hits {
		term := document.HitTerm{Field: h.field, Value: h.value.Text()}
		switch {
		case h.value.Source != nil:
			term.Visibility = h.value.Source.Visibility
		case doc != nil:
			vis, ok := doc.VisibilityFor(h.field, h.value.Text())
			if !ok {
				vis, ok = doc.VisibilityFor(h.field, h.value.Normalized)
			}
			if !ok {
				continue
			}
			term.Visibility = vis
		default:
			continue
		}
		if !seen[term] {
			seen[term] = true
			out = append(out, term)
		}
	}
	return out
}

func (c *call) hit(field string, v Value) {
	if c.track {
		c.hits = append(c.hits, hitTuple{field: field, value: v})
	}
}

// resolve looks up field. An incomplete field the context has no values
// for takes the partial path, which marks the call PARTIAL.
func (c *call) resolve(field string) Resolution {
	values := c.ctx.Values(field)
	if len(values) > 0 || !c.ev.incomplete[field] {
		return Resolution{Values: values}
	}
	c.partial = append(c.partial, field)
	res := Resolution{Partial: true, Fields: []string{field}}
	if c.ev.fallback != nil {
		if values, ok := c.ev.fallback(field); ok {
			res.Values = values
			return res
		}
	}
	res.Unresolved = true
	return res
}

// eval computes the truth of a boolean-position node.
func (c *call) eval(n querylang.Node) Truth {
	switch e := n.(type) {
	case nil:
		return Unknown
	case *querylang.Script:
		return c.eval(e.Child)
	case *querylang.Reference:
		return c.eval(e.Term)
	case *querylang.Not:
		return c.eval(e.Term).Not()
	case *querylang.And:
		result := True
		for _, t := range e.Terms {
			switch c.eval(t) {
			case False:
				return False
			case Unknown:
				result = Unknown
			case Assumed:
				if result == True {
					result = Assumed
				}
			}
		}
		return result
	case *querylang.Or:
		result := False
		for _, t := range e.Terms {
			switch c.eval(t) {
			case True:
				return True
			case Assumed:
				result = Assumed
			case Unknown:
				if result == False {
					result = Unknown
				}
			}
		}
		return result
	case *querylang.Comparison:
		return c.compare(e)
	case *querylang.Function:
		fn, ok := c.ev.functions[e]
		if !ok {
			return Unknown
		}
		return fn.eval(c, e)
	case *querylang.Identifier:
		res := c.resolve(e.Name)
		if res.Unresolved {
			return Assumed
		}
		return truthOf(len(res.Values) > 0)
	case *querylang.Literal:
		return literalTruth(e)
	case *querylang.Arithmetic:
		nums, unresolved := c.numbers(e)
		if unresolved {
			return Assumed
		}
		for _, n := range nums {
			if n != 0 && !math.IsNaN(n) {
				return True
			}
		}
		return False
	default:
		return Unknown
	}
}

func literalTruth(l *querylang.Literal) Truth {
	switch l.Kind {
	case querylang.LitBool:
		return truthOf(l.Bool)
	case querylang.LitInt:
		return truthOf(l.Int != 0)
	case querylang.LitFloat:
		return truthOf(l.Float != 0)
	case querylang.LitString:
		return truthOf(l.Str != "")
	default:
		return False
	}
}

// compare evaluates a comparison with any-value semantics over multi-valued
// fields. Positive operators record the satisfying values as hits.
func (c *call) compare(n *querylang.Comparison) Truth {
	plan, ok := c.ev.comparisons[n]
	if !ok {
		return Unknown
	}
	if arith, ok := plan.field.(*querylang.Arithmetic); ok {
		return c.compareArithmetic(arith, plan)
	}

	field := plan.field.(*querylang.Identifier).Name
	res := c.resolve(field)
	if res.Unresolved {
		return Assumed
	}
	values := res.Values

	if plan.lit.Kind == querylang.LitNull {
		switch plan.op {
		case querylang.OpEQ:
			return truthOf(len(values) == 0)
		case querylang.OpNE:
			return truthOf(len(values) > 0)
		default:
			return Unknown
		}
	}

	switch plan.op {
	case querylang.OpMatches:
		matched := False
		for _, v := range values {
			if plan.re.MatchString(v.Normalized) {
				c.hit(field, v)
				matched = True
			}
		}
		return matched
	case querylang.OpNotMatches:
		for _, v := range values {
			if plan.re.MatchString(v.Normalized) {
				return False
			}
		}
		return True
	case querylang.OpNE:
		// Negation of "any value equals".
		for _, v := range values {
			if c.ev.arith.Compare(querylang.OpEQ, v, plan.lit) == True {
				return False
			}
		}
		return True
	}

	// EQ and ordered operators: true if any value satisfies.
	if len(values) == 0 {
		return False
	}
	result := False
	comparable := false
	for _, v := range values {
		switch c.ev.arith.Compare(plan.op, v, plan.lit) {
		case True:
			c.hit(field, v)
			result = True
			comparable = true
		case False:
			comparable = true
		}
	}
	if result == False && !comparable {
		return Unknown
	}
	return result
}

func (c *call) compareArithmetic(n *querylang.Arithmetic, plan comparisonPlan) Truth {
	nums, unresolved := c.numbers(n)
	if unresolved {
		return Assumed
	}
	want := plan.lit.Float
	if plan.lit.Kind == querylang.LitInt {
		want = float64(plan.lit.Int)
	}
	if plan.op == querylang.OpNE {
		for _, v := range nums {
			if v == want {
				return False
			}
		}
		return True
	}
	for _, v := range nums {
		if compareOrdered(plan.op, cmpFloat(v, want)) == True {
			return True
		}
	}
	return False
}

// maxArithmeticValues bounds the cross product of multi-valued operands.
const maxArithmeticValues = 1024

// numbers computes every value an arithmetic operand can take. It reports
// unresolved when an incomplete field could not be resolved.
func (c *call) numbers(n querylang.Node) ([]float64, bool) {
	switch e := querylang.Dereference(n).(type) {
	case *querylang.Literal:
		if e.Kind == querylang.LitInt {
			return []float64{float64(e.Int)}, false
		}
		return []float64{e.Float}, false
	case *querylang.Identifier:
		res := c.resolve(e.Name)
		if res.Unresolved {
			return nil, true
		}
		var out []float64
		for _, v := range res.Values {
			if f, ok := ToNum(v.Normalized); ok {
				out = append(out, f)
			}
		}
		return out, false
	case *querylang.Arithmetic:
		left, lu := c.numbers(e.Left)
		right, ru := c.numbers(e.Right)
		if lu || ru {
			return nil, true
		}
		var out []float64
		for _, a := range left {
			for _, b := range right {
				if len(out) >= maxArithmeticValues {
					return out, false
				}
				out = append(out, apply(e.Op, a, b))
			}
		}
		return out, false
	default:
		return nil, false
	}
}

func apply(op querylang.ArithOp, a, b float64) float64 {
	switch op {
	case querylang.OpAdd:
		return a + b
	case querylang.OpSub:
		return a - b
	case querylang.OpMul:
		return a * b
	case querylang.OpDiv:
		if b == 0 {
			return math.NaN()
		}
		return a / b
	case querylang.OpMod:
		if b == 0 {
			return math.NaN()
		}
		return math.Mod(a, b)
	default:
		return math.NaN()
	}
}
