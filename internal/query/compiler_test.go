package query

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"sieve/internal/edge"
	"sieve/internal/querylang"
	"sieve/internal/store"
)

func mustCompile(t *testing.T, c *Compiler, q string, p Params) *ScanPlan {
	t.Helper()
	plan, err := c.Compile(q, p)
	if err != nil {
		t.Fatalf("Compile(%q): %v", q, err)
	}
	return plan
}

func kinds(stages []store.Stage) string {
	parts := make([]string, len(stages))
	for i, st := range stages {
		parts[i] = fmt.Sprintf("%d:%s", st.Priority, st.Kind)
	}
	return strings.Join(parts, " ")
}

func TestCompileRanges(t *testing.T) {
	c := NewCompiler(DefaultLimits(), nil)
	tests := []struct {
		name  string
		query string
		want  []store.Range
	}{
		{
			"source and sinks",
			"SOURCE == 'alice' && (SINK == 'carol' || SINK == 'bob')",
			[]store.Range{store.ExactRow("alice\x00bob"), store.ExactRow("alice\x00carol")},
		},
		{
			"source only",
			"SOURCE == 'alice' && TYPE == 'EMAIL'",
			[]store.Range{store.RowPrefix("alice\x00")},
		},
		{
			"several sources",
			"SOURCE == 'bob' || SOURCE == 'alice'",
			[]store.Range{store.RowPrefix("alice\x00"), store.RowPrefix("bob\x00")},
		},
		{
			"literal on the left",
			"'alice' == SOURCE",
			[]store.Range{store.RowPrefix("alice\x00")},
		},
		{
			"regex prefix",
			"SOURCE =~ 'ali.*'",
			[]store.Range{store.RowPrefix("ali")},
		},
		{
			"anchored regex prefix",
			"SOURCE =~ '^ali.*'",
			[]store.Range{store.RowPrefix("ali")},
		},
		{
			"literal regex",
			"SOURCE =~ 'alice'",
			[]store.Range{store.RowPrefix("alice\x00")},
		},
		{
			"duplicate branches",
			"(SOURCE == 'alice' && TYPE == 'A') || (SOURCE == 'alice' && TYPE == 'B')",
			[]store.Range{store.RowPrefix("alice\x00")},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan := mustCompile(t, c, tc.query, Params{})
			if len(plan.Units) != 1 {
				t.Fatalf("units = %d, want 1", len(plan.Units))
			}
			if !reflect.DeepEqual(plan.Units[0].Ranges, tc.want) {
				t.Errorf("ranges = %v, want %v", plan.Units[0].Ranges, tc.want)
			}
		})
	}
}

func TestCompileNeedsSource(t *testing.T) {
	c := NewCompiler(DefaultLimits(), nil)
	for _, q := range []string{
		"TYPE == 'EMAIL'",
		"SOURCE == 'alice' || TYPE == 'EMAIL'",
		"!(SOURCE == 'alice')",
		"SOURCE != 'alice'",
		"SOURCE =~ '.*lice'",
		"SOURCE =~ '(?i)alice'",
	} {
		if _, err := c.Compile(q, Params{}); !errors.Is(err, ErrNoSourceBinding) {
			t.Errorf("Compile(%q) error = %v, want ErrNoSourceBinding", q, err)
		}
	}
}

func TestCompileEmptyQuery(t *testing.T) {
	c := NewCompiler(DefaultLimits(), nil)
	for _, q := range []string{"", "   ", "filter:isNotNull()"} {
		_, err := c.Compile(q, Params{})
		if !errors.Is(err, ErrInvariant) {
			t.Fatalf("Compile(%q) error = %v, want ErrInvariant", q, err)
		}
		if !strings.Contains(err.Error(), "empty after initial processing") {
			t.Errorf("Compile(%q) error = %v", q, err)
		}
	}
}

func TestCompileParseError(t *testing.T) {
	c := NewCompiler(DefaultLimits(), nil)
	_, err := c.Compile("SOURCE ==", Params{})
	var pe *querylang.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want a ParseError", err)
	}
}

func termQuery(n int) string {
	terms := []string{"SOURCE == 'alice'"}
	for i := 1; i < n; i++ {
		terms = append(terms, fmt.Sprintf("ATTRIBUTE1 != 'v%d'", i))
	}
	return strings.Join(terms, " && ")
}

func TestCompileTermLimit(t *testing.T) {
	c := NewCompiler(DefaultLimits(), nil)
	if _, err := c.Compile(termQuery(50), Params{}); err != nil {
		t.Fatalf("50 terms: %v", err)
	}
	_, err := c.Compile(termQuery(51), Params{})
	if !errors.Is(err, ErrTermLimit) {
		t.Fatalf("51 terms: error = %v, want ErrTermLimit", err)
	}

	unlimited := NewCompiler(Limits{}, nil)
	if _, err := unlimited.Compile(termQuery(60), Params{}); err != nil {
		t.Fatalf("no limit: %v", err)
	}
}

func TestCompileStages(t *testing.T) {
	c := NewCompiler(DefaultLimits(), nil)
	begin := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		params Params
		want   string
	}{
		{"no dates", Params{}, "30:date-type 31:expression"},
		{"event dates", Params{Begin: begin, End: end}, "30:date-range 31:date-type 32:expression"},
		{"activity dates", Params{Begin: begin, End: end, DateType: edge.Activity}, "30:date-range 31:date-type 32:expression"},
		{"any dates", Params{Begin: begin, End: end, DateType: edge.Any}, "30:date-range 31:expression"},
		{"load dates", Params{Begin: begin, End: end, DateType: edge.Load}, "30:load-date 31:expression"},
		{"any load dates", Params{Begin: begin, End: end, DateType: edge.AnyLoad}, "30:load-date 31:expression"},
		{"load without dates", Params{DateType: edge.Load}, "30:date-type 31:expression"},
		{"any without dates", Params{DateType: edge.Any}, "30:expression"},
		{"only begin", Params{Begin: begin}, "30:date-type 31:expression"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan := mustCompile(t, c, "SOURCE == 'alice'", tc.params)
			if got := kinds(plan.Units[0].Stages); got != tc.want {
				t.Errorf("stages = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCompileStageOptions(t *testing.T) {
	limits := DefaultLimits()
	limits.DateFilterSkipLimit = 5
	limits.DateFilterScanLimit = 1000
	c := NewCompiler(limits, nil)
	plan := mustCompile(t, c, "SOURCE == 'alice' && filter:isNotNull(ATTRIBUTE1)", Params{
		Begin:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		DateType:     edge.ActivityLoad,
		IncludeStats: true,
	})
	stages := plan.Units[0].Stages

	wantDate := map[string]string{
		edge.OptBegin:     "20240101",
		edge.OptEnd:       "20240201",
		edge.OptSkipLimit: "5",
		edge.OptScanLimit: "1000",
		edge.OptDateType:  "ACTIVITY_LOAD",
	}
	if !reflect.DeepEqual(stages[0].Options, wantDate) {
		t.Errorf("load-date options = %v, want %v", stages[0].Options, wantDate)
	}

	expr := stages[1]
	if expr.Kind != edge.KindExpression {
		t.Fatalf("stage 1 = %s, want expression", expr)
	}
	if got, want := expr.Options[edge.OptQuery], "SOURCE == 'alice' && !(ATTRIBUTE1 == null)"; got != want {
		t.Errorf("query = %q, want %q", got, want)
	}
	if plan.Query != expr.Options[edge.OptQuery] {
		t.Errorf("plan query %q differs from stage query", plan.Query)
	}
	if expr.Options[edge.OptStats] != "true" {
		t.Errorf("stats = %q, want true", expr.Options[edge.OptStats])
	}
	if _, ok := expr.Options[edge.OptPrefilter]; ok {
		t.Error("unexpected prefilter for a negated term")
	}
}

func TestCompileCustomStages(t *testing.T) {
	limits := DefaultLimits()
	limits.BasePriority = 10
	limits.CustomStages = []store.Stage{{Kind: "audit", Options: map[string]string{"level": "1"}}}
	c := NewCompiler(limits, nil)

	plan := mustCompile(t, c, "SOURCE == 'alice'", Params{
		DateType: edge.Any,
		Stages:   []store.Stage{{Name: "mine", Kind: "sample", Priority: 999}},
	})
	stages := plan.Units[0].Stages
	if got, want := kinds(stages), "10:expression 11:audit 12:sample"; got != want {
		t.Fatalf("stages = %s, want %s", got, want)
	}
	if stages[1].Name != "audit" || stages[2].Name != "mine" {
		t.Errorf("names = %q, %q", stages[1].Name, stages[2].Name)
	}

	// The configured options are copied, not shared.
	stages[1].Options["level"] = "2"
	if limits.CustomStages[0].Options["level"] != "1" {
		t.Error("custom stage options shared with the plan")
	}

	_, err := c.Compile("SOURCE == 'alice'", Params{Stages: []store.Stage{{Name: "nokind"}}})
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("error = %v, want ErrInvalidParams", err)
	}
}

func TestCompileInvalidParams(t *testing.T) {
	c := NewCompiler(DefaultLimits(), nil)
	_, err := c.Compile("SOURCE == 'alice'", Params{
		Begin: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("reversed dates: error = %v", err)
	}
	_, err = c.Compile("SOURCE == 'alice'", Params{DateType: "sometimes"})
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("bad date type: error = %v", err)
	}
}

func prefilterOf(t *testing.T, plan *ScanPlan) edge.Prefilter {
	t.Helper()
	for _, st := range plan.Units[0].Stages {
		if st.Kind != edge.KindExpression {
			continue
		}
		v, ok := st.Options[edge.OptPrefilter]
		if !ok {
			return nil
		}
		p, err := edge.DecodePrefilter(v)
		if err != nil {
			t.Fatalf("decode prefilter: %v", err)
		}
		return p
	}
	t.Fatal("no expression stage")
	return nil
}

func TestCompilePrefilter(t *testing.T) {
	c := NewCompiler(DefaultLimits(), nil)

	plan := mustCompile(t, c, "SOURCE == 'alice' && SINK == 'bob' && TYPE == 'EMAIL' && RELATION == 'TO'", Params{})
	want := edge.Prefilter{"TYPE": {"EMAIL"}, "RELATION": {"TO"}}
	if got := prefilterOf(t, plan); !reflect.DeepEqual(got, want) {
		t.Errorf("prefilter = %v, want %v", got, want)
	}
	if got := plan.Units[0].ColumnFamilies; !reflect.DeepEqual(got, []string{"EMAIL/TO"}) {
		t.Errorf("column families = %v", got)
	}

	// Values from every branch are merged.
	plan = mustCompile(t, c, "SOURCE == 'alice' && (TYPE == 'PHONE' || TYPE == 'EMAIL')", Params{})
	want = edge.Prefilter{"TYPE": {"EMAIL", "PHONE"}}
	if got := prefilterOf(t, plan); !reflect.DeepEqual(got, want) {
		t.Errorf("prefilter = %v, want %v", got, want)
	}
	if got := plan.Units[0].ColumnFamilies; got != nil {
		t.Errorf("column families = %v, want none without RELATION", got)
	}

	// One branch leaves TYPE open, so TYPE cannot be prefiltered.
	plan = mustCompile(t, c, "SOURCE == 'alice' && (TYPE == 'EMAIL' || TYPE != 'PHONE')", Params{})
	if got := prefilterOf(t, plan); got != nil {
		t.Errorf("prefilter = %v, want none", got)
	}
	plan = mustCompile(t, c, "(SOURCE == 'alice' && TYPE == 'EMAIL') || SOURCE == 'bob'", Params{})
	if got := prefilterOf(t, plan); got != nil {
		t.Errorf("prefilter = %v, want none", got)
	}
}

func TestCompileColumnFamilies(t *testing.T) {
	c := NewCompiler(DefaultLimits(), nil)
	plan := mustCompile(t, c,
		"SOURCE == 'alice' && TYPE == 'EMAIL' && (RELATION == 'TO' || RELATION == 'FROM')", Params{})
	want := []string{"EMAIL/FROM", "EMAIL/TO"}
	if got := plan.Units[0].ColumnFamilies; !reflect.DeepEqual(got, want) {
		t.Errorf("column families = %v, want %v", got, want)
	}
}

func TestPrunePrefilter(t *testing.T) {
	c := NewCompiler(DefaultLimits(), nil)
	got := c.prunePrefilter(map[string][]string{
		"TYPE":     {"EMAIL", DisablePrefilter, "PHONE"},
		"RELATION": {"TO", "TO"},
		"EMPTY":    {},
	})
	want := edge.Prefilter{"RELATION": {"TO"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("prunePrefilter = %v, want %v", got, want)
	}

	limits := DefaultLimits()
	limits.MaxPrefilterValues = 1
	small := NewCompiler(limits, nil)
	if got := small.prunePrefilter(map[string][]string{"A": {"1"}, "B": {"2"}}); got != nil {
		t.Errorf("over the limit: prefilter = %v, want none", got)
	}
	plan := mustCompile(t, small, "SOURCE == 'alice' && TYPE == 'EMAIL' && RELATION == 'TO'", Params{})
	if got := prefilterOf(t, plan); got != nil {
		t.Errorf("over the limit: plan prefilter = %v", got)
	}

	limits.MaxPrefilterValues = 0
	off := NewCompiler(limits, nil)
	if got := off.prunePrefilter(map[string][]string{"A": {"1"}}); got != nil {
		t.Errorf("zero limit: prefilter = %v, want none", got)
	}
	plan = mustCompile(t, off, "SOURCE == 'alice' && TYPE == 'EMAIL'", Params{})
	if got := prefilterOf(t, plan); got != nil {
		t.Errorf("zero limit: plan prefilter = %v", got)
	}
}

func TestCompileSplitsUnits(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxRangesPerUnit = 2
	c := NewCompiler(limits, nil)
	plan := mustCompile(t, c, "SOURCE == 'a' || SOURCE == 'b' || SOURCE == 'c'", Params{})
	if len(plan.Units) != 2 {
		t.Fatalf("units = %d, want 2", len(plan.Units))
	}
	if len(plan.Units[0].Ranges) != 2 || len(plan.Units[1].Ranges) != 1 {
		t.Errorf("ranges per unit = %d, %d", len(plan.Units[0].Ranges), len(plan.Units[1].Ranges))
	}
	if !reflect.DeepEqual(plan.Units[0].Stages, plan.Units[1].Stages) {
		t.Error("units have different stages")
	}
	plan.Units[0].Stages[0].Options["x"] = "y"
	if _, ok := plan.Units[1].Stages[0].Options["x"]; ok {
		t.Error("units share stage options")
	}
}

func TestLiteralPrefix(t *testing.T) {
	tests := []struct {
		pattern  string
		prefix   string
		complete bool
	}{
		{"alice", "alice", true},
		{"ali.*", "ali", false},
		{"^ali", "ali", false},
		{"(alice)", "alice", true},
		{"a|b", "", false},
		{".*x", "", false},
		{"(?i)alice", "", false},
		{"[", "", false},
	}
	for _, tc := range tests {
		prefix, complete := literalPrefix(tc.pattern)
		if prefix != tc.prefix || complete != tc.complete {
			t.Errorf("literalPrefix(%q) = %q, %v; want %q, %v", tc.pattern, prefix, complete, tc.prefix, tc.complete)
		}
	}
}
