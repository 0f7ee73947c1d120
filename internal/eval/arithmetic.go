package eval

import (
	"strconv"
	"strings"

	"sieve/internal/querylang"
)

// Truth is a three-valued boolean, plus Assumed for terms over an
// incomplete field that could not be resolved.
type Truth int8

const (
	Unknown Truth = iota
	False
	True
	// Assumed counts as satisfied and is its own negation, so A != 'x' and
	// !(A == 'x') agree when A is unresolved.
	Assumed
)

func (t Truth) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	case Assumed:
		return "assumed"
	default:
		return "unknown"
	}
}

// Not negates t. Unknown and Assumed are unchanged.
func (t Truth) Not() Truth {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return t
	}
}

func truthOf(b bool) Truth {
	if b {
		return True
	}
	return False
}

// Arithmetic compares a single field value with a literal. Implementations
// must be safe for concurrent use.
type Arithmetic interface {
	// Compare applies op (never a regex operator) and returns Unknown when
	// the value cannot be compared with the literal.
	Compare(op querylang.CompareOp, v Value, lit *querylang.Literal) Truth

	// TracksHits reports whether values that satisfy a term are recorded as
	// hit terms.
	TracksHits() bool
}

// DefaultArithmetic compares strings exactly and numbers numerically. It
// does not track hits.
type DefaultArithmetic struct{}

var _ Arithmetic = DefaultArithmetic{}

func (DefaultArithmetic) TracksHits() bool { return false }

func (DefaultArithmetic) Compare(op querylang.CompareOp, v Value, lit *querylang.Literal) Truth {
	switch lit.Kind {
	case querylang.LitString:
		return compareOrdered(op, strings.Compare(v.Normalized, lit.Str))
	case querylang.LitInt, querylang.LitFloat:
		n, ok := ToNum(v.Normalized)
		if !ok {
			return unorderedMismatch(op)
		}
		want := lit.Float
		if lit.Kind == querylang.LitInt {
			want = float64(lit.Int)
		}
		return compareOrdered(op, cmpFloat(n, want))
	case querylang.LitBool:
		b, err := strconv.ParseBool(v.Normalized)
		if err != nil {
			return unorderedMismatch(op)
		}
		switch op {
		case querylang.OpEQ:
			return truthOf(b == lit.Bool)
		case querylang.OpNE:
			return truthOf(b != lit.Bool)
		default:
			return Unknown
		}
	default:
		// A present value is never equal to null.
		switch op {
		case querylang.OpEQ:
			return False
		case querylang.OpNE:
			return True
		default:
			return Unknown
		}
	}
}

// HitListArithmetic behaves like DefaultArithmetic and tracks hit terms.
type HitListArithmetic struct {
	DefaultArithmetic
}

var _ Arithmetic = HitListArithmetic{}

func (HitListArithmetic) TracksHits() bool { return true }

// unorderedMismatch is the result of comparing values of different types:
// definitely unequal, and not ordered.
func unorderedMismatch(op querylang.CompareOp) Truth {
	switch op {
	case querylang.OpEQ:
		return False
	case querylang.OpNE:
		return True
	default:
		return Unknown
	}
}

func compareOrdered(op querylang.CompareOp, c int) Truth {
	switch op {
	case querylang.OpEQ:
		return truthOf(c == 0)
	case querylang.OpNE:
		return truthOf(c != 0)
	case querylang.OpLT:
		return truthOf(c < 0)
	case querylang.OpGT:
		return truthOf(c > 0)
	case querylang.OpLE:
		return truthOf(c <= 0)
	case querylang.OpGE:
		return truthOf(c >= 0)
	default:
		return Unknown
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ToNum parses s as a number.
func ToNum(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
