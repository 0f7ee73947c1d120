package rewrite

import (
	"testing"

	"sieve/internal/querylang"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rewriteString(t *testing.T, query string) string {
	t.Helper()
	script, err := querylang.Parse(query)
	require.NoError(t, err)
	return RewriteNullFunctions(script).String()
}

func TestRewriteNullFunctions(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"isNull single", "filter:isNull(A)", "A == null"},
		{"isNull union", "filter:isNull(A || B)", "A == null && B == null"},
		{"isNull grouped union", "filter:isNull((A || B || C))", "A == null && B == null && C == null"},
		{"isNotNull single", "filter:isNotNull(A)", "!(A == null)"},
		{"isNotNull union", "filter:isNotNull(A || B)", "!(A == null) || !(B == null)"},
		{"flattens enclosing and", "X == 1 && filter:isNull(A || B)", "X == 1 && A == null && B == null"},
		{"flattens enclosing or", "X == 1 || filter:isNotNull(A || B)", "X == 1 || !(A == null) || !(B == null)"},
		{"different kind not flattened", "X == 1 && filter:isNotNull(A || B)", "X == 1 && (!(A == null) || !(B == null))"},
		{"inside negation", "!(filter:isNull(A))", "!(A == null)"},
		{"deeply nested", "X == 1 && (Y == 2 || (Z == 3 && filter:isNull(A || B)))", "X == 1 && (Y == 2 || (Z == 3 && A == null && B == null))"},
		{"arithmetic left alone", "X + 1 > 2 && filter:isNull(A)", "X + 1 > 2 && A == null"},
		{"comparison operand left alone", "(filter:isNull(A)) == true", "(filter:isNull(A)) == true"},
		{"other namespace untouched", "content:isNull(A)", "content:isNull(A)"},
		{"other function args untouched", "f:options(filter:isNull(A))", "f:options(filter:isNull(A))"},
		{"no identifiers in junction", "X == 1 && filter:isNull('lit')", "X == 1"},
		{"no identifiers at root", "filter:isNotNull()", ""},
		{"no identifiers under not", "X == 1 || !filter:isNull(2)", "X == 1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, rewriteString(t, tc.query))
		})
	}
}

func TestRewriteStructure(t *testing.T) {
	script := RewriteNullFunctions(querylang.MustParse("X == 1 && filter:isNull(A || B)"))
	and, ok := script.Child.(*querylang.And)
	require.True(t, ok)
	require.Len(t, and.Terms, 3, "nested conjunction should be spliced")
	for _, term := range and.Terms {
		assert.Same(t, and, term.Parent())
		cmp, ok := term.(*querylang.Comparison)
		require.True(t, ok)
		assert.Equal(t, querylang.OpEQ, cmp.Op)
	}
}

func TestRewriteIsIdempotent(t *testing.T) {
	queries := []string{
		"filter:isNull(A)",
		"filter:isNotNull(A || B)",
		"X == 1 && filter:isNull(A || B) && !(filter:isNotNull(C || D))",
		"(X == 1 || filter:isNotNull(A || B)) && filter:isNull(E)",
		"content:phrase(BODY, 'a', 'b') || filter:isNull(A || (B || C))",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			once := RewriteNullFunctions(querylang.MustParse(q)).String()
			twice := RewriteNullFunctions(RewriteNullFunctions(querylang.MustParse(q))).String()
			assert.Equal(t, once, twice)

			// Re-parsing the output and rewriting again changes nothing either.
			again := RewriteNullFunctions(querylang.MustParse(once)).String()
			assert.Equal(t, once, again)
		})
	}
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"((A == 1 && (B == 2 && C == 3)) || (D == 4 || E == 5))", "A == 1 && B == 2 && C == 3 || D == 4 || E == 5"},
		{"(A == 1)", "A == 1"},
		{"!((A == 1 && (B == 2)))", "!(A == 1 && B == 2)"},
		{"A == 1 && (B == 2 || C == 3)", "A == 1 && (B == 2 || C == 3)"},
		{"f:g((A || B))", "f:g((A || B))"},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			orig := querylang.MustParse(tc.query)
			before := orig.String()
			flat := Flatten(orig)
			assert.Equal(t, tc.want, flat.String())
			assert.Equal(t, before, orig.String(), "input must not be modified")
		})
	}

	or, ok := Flatten(querylang.MustParse("A == 1 || (B == 2 || (C == 3 || D == 4))")).(*querylang.Script).Child.(*querylang.Or)
	require.True(t, ok)
	assert.Len(t, or.Terms, 4)
}

func TestNormalize(t *testing.T) {
	script := Normalize(querylang.MustParse("(X == 1) && (filter:isNull(A || B) && Y == 2)"))
	assert.Equal(t, "X == 1 && A == null && B == null && Y == 2", script.String())
}
