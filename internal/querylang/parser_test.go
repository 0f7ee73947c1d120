package querylang

import (
	"errors"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"equality", "A == 'x'", "A == 'x'"},
		{"double quotes", `A == "x"`, "A == 'x'"},
		{"and", "A == 'x' && B == 'y'", "A == 'x' && B == 'y'"},
		{"keyword and", "A == 1 AND B == 2", "A == 1 && B == 2"},
		{"keyword mixed case", "A == 1 Or B == 2", "A == 1 || B == 2"},
		{"precedence", "a == 1 || b == 2 && c == 3", "a == 1 || b == 2 && c == 3"},
		{"grouping kept", "(a == 1 || b == 2) && c == 3", "(a == 1 || b == 2) && c == 3"},
		{"negated group", "!(A == null)", "!(A == null)"},
		{"not keyword", "not A == null", "!(A == null)"},
		{"not identifier", "!A", "!A"},
		{"function", "filter:isNull(A || B)", "filter:isNull(A || B)"},
		{"function no namespace", "f(A, 'x')", "f(A, 'x')"},
		{"content function", "content:phrase(BODY, 'quick', 'fox')", "content:phrase(BODY, 'quick', 'fox')"},
		{"arithmetic precedence", "x + 1 * 2 > 3", "x + 1 * 2 > 3"},
		{"arithmetic grouping", "(x + 1) * 2 == 4", "(x + 1) * 2 == 4"},
		{"float", "A > 1.5", "A > 1.5"},
		{"integral float", "A == 2.0", "A == 2.0"},
		{"negative", "A == -3", "A == -3"},
		{"regex", "A =~ 'ab.*'", "A =~ 'ab.*'"},
		{"not regex", "A !~ 'ab.*'", "A !~ 'ab.*'"},
		{"regex escape", `A =~ 'a\.b'`, `A =~ 'a\\.b'`},
		{"quote escape", `A == "it's"`, `A == 'it\'s'`},
		{"booleans", "A == true || B == false", "A == true || B == false"},
		{"dotted identifier", "META.FIELD == 1", "META.FIELD == 1"},
		{"all comparisons", "a < 1 && b > 1 && c <= 1 && d >= 1 && e != 1", "a < 1 && b > 1 && c <= 1 && d >= 1 && e != 1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			script, err := Parse(tc.input)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.input, err)
			}
			if got := script.String(); got != tc.want {
				t.Errorf("Parse(%q).String() = %q, want %q", tc.input, got, tc.want)
			}

			// Rendering must parse back to the same text.
			again, err := Parse(script.String())
			if err != nil {
				t.Fatalf("re-parse %q: %v", script.String(), err)
			}
			if again.String() != script.String() {
				t.Errorf("re-parse changed text: %q -> %q", script.String(), again.String())
			}
		})
	}
}

func TestParseShape(t *testing.T) {
	script := MustParse("A == 1 || B == 2 || C == 3")
	or, ok := script.Child.(*Or)
	if !ok {
		t.Fatalf("expected *Or, got %T", script.Child)
	}
	if len(or.Terms) != 3 {
		t.Fatalf("expected one Or with 3 terms, got %d", len(or.Terms))
	}
	for i, term := range or.Terms {
		if term.Parent() != or {
			t.Errorf("term %d: parent not set", i)
		}
	}
	if or.Parent() != script {
		t.Error("root junction should be owned by the script")
	}

	ref, ok := MustParse("(A == 1)").Child.(*Reference)
	if !ok {
		t.Fatalf("parentheses should produce a Reference")
	}
	if _, ok := ref.Term.(*Comparison); !ok {
		t.Errorf("expected comparison inside reference, got %T", ref.Term)
	}

	fn, ok := MustParse("filter:isNotNull(A)").Child.(*Function)
	if !ok {
		t.Fatalf("expected *Function")
	}
	if fn.Namespace != "filter" || fn.Name != "isNotNull" || len(fn.Args) != 1 {
		t.Errorf("unexpected function %s with %d args", fn.QualifiedName(), len(fn.Args))
	}

	lit := MustParse("A == 7").Child.(*Comparison).Right.(*Literal)
	if lit.Kind != LitInt || lit.Int != 7 {
		t.Errorf("expected int literal 7, got %s %s", lit.Kind, lit.Text())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrEmptyQuery},
		{"whitespace", "   ", ErrEmptyQuery},
		{"missing operand", "A ==", ErrUnexpectedEOF},
		{"unmatched paren", "(A == 1", ErrUnmatchedParen},
		{"stray close paren", "A == )", ErrUnmatchedParen},
		{"unterminated string", "A == 'x", ErrUnterminatedString},
		{"single equals", "A = 1", ErrUnexpectedChar},
		{"chained comparison", "A == 1 == 2", ErrUnexpectedToken},
		{"trailing token", "A == 1 B", ErrUnexpectedToken},
		{"bad number", "A == 1abc", ErrInvalidNumber},
		{"bad escape", `A == 'a\q'`, ErrInvalidEscape},
		{"empty parens", "()", ErrEmptyQuery},
		{"dangling not", "!", ErrUnexpectedEOF},
		{"unterminated call", "f:g(A", ErrUnmatchedParen},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.input)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want %v", tc.input, tc.want)
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("Parse(%q) error = %v, want %v", tc.input, err, tc.want)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("error %v is not a *ParseError", err)
			}
		})
	}
}
