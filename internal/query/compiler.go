package query

import (
	"fmt"
	"log/slog"
	"regexp/syntax"
	"slices"
	"strconv"
	"strings"
	"time"

	"sieve/internal/edge"
	"sieve/internal/logging"
	"sieve/internal/querylang"
	"sieve/internal/rewrite"
	"sieve/internal/store"
)

// DisablePrefilter is the prefilter value that marks a field as not
// prefilterable. A field carrying it is dropped from the prefilter.
const DisablePrefilter = "__DISABLE_PREFILTER__"

// Limits configure the compiler.
type Limits struct {
	// MaxQueryTerms bounds the number of comparisons and function calls in
	// the expression. Zero disables the check.
	MaxQueryTerms int

	// MaxPrefilterValues bounds the number of prefilter fields. Above it
	// prefiltering is turned off, so zero disables prefiltering whenever
	// any field survives pruning.
	MaxPrefilterValues int

	// BasePriority is the priority of the first stage.
	BasePriority int

	DateFilterSkipLimit int
	DateFilterScanLimit int64

	// MaxRangesPerUnit splits plans into units of at most this many
	// ranges. Zero keeps a single unit.
	MaxRangesPerUnit int

	// MaxBranches bounds the disjunctive normal form of the expression.
	MaxBranches int

	// CustomStages are appended to every plan, before the caller's stages.
	CustomStages []store.Stage
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxQueryTerms:      50,
		MaxPrefilterValues: 10,
		BasePriority:       30,
		MaxBranches:        256,
	}
}

// Params are the per-query inputs besides the expression.
type Params struct {
	// Begin and End bound the edge date, inclusive. The date filter is
	// only added when both are set.
	Begin, End time.Time

	// DateType selects which date Begin and End apply to. Empty is EVENT.
	DateType edge.DateType

	// IncludeStats lets statistics edges through the expression stage.
	IncludeStats bool

	// Stages are appended after every other stage.
	Stages []store.Stage
}

// Compiler turns query strings into scan plans. It performs no I/O and is
// safe for concurrent use.
type Compiler struct {
	limits Limits
	logger *slog.Logger
}

// NewCompiler returns a compiler with the given limits.
// If logger is nil, logging is disabled.
func NewCompiler(limits Limits, logger *slog.Logger) *Compiler {
	return &Compiler{
		limits: limits,
		logger: logging.For(logger, "compiler"),
	}
}

// Compile parses and normalises query and derives its scan plan:
//
//  1. every branch of the expression's disjunctive normal form must bind
//     SOURCE; the bound SOURCE and SINK values give the row ranges,
//  2. the normalised expression must parse again and stay within
//     MaxQueryTerms,
//  3. equality terms on other fields become the prefilter,
//  4. stages are date filter, date-type filter, expression filter and
//     custom stages, with increasing priorities from BasePriority.
func (c *Compiler) Compile(query string, p Params) (*ScanPlan, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query string is empty after initial processing", ErrInvariant)
	}
	dt, err := edge.ParseDateType(string(p.DateType))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if !p.Begin.IsZero() && !p.End.IsZero() && p.End.Before(p.Begin) {
		return nil, fmt.Errorf("%w: begin %s is after end %s", ErrInvalidParams,
			p.Begin.Format(edge.DateLayout), p.End.Format(edge.DateLayout))
	}

	script, err := querylang.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	script = rewrite.Normalize(script)
	if script.Child == nil {
		return nil, fmt.Errorf("%w: query string is empty after initial processing", ErrInvariant)
	}

	dnf, err := querylang.ToDNF(script, c.limits.MaxBranches)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	bindings := make([]branchBindings, len(dnf.Branches))
	var ranges []store.Range
	for i, branch := range dnf.Branches {
		bindings[i] = bindBranch(branch)
		r := bindings[i].ranges()
		if len(r) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoSourceBinding, branch)
		}
		ranges = append(ranges, r...)
	}
	ranges = store.SortRanges(ranges)

	residual := script.String()
	if strings.TrimSpace(residual) == "" && len(ranges) == 0 {
		return nil, fmt.Errorf("%w: query string is empty after initial processing", ErrInvariant)
	}
	if residual != "" {
		if _, err := querylang.Parse(residual); err != nil {
			return nil, fmt.Errorf("%w: normalised query %q does not parse: %w", ErrInvariant, residual, err)
		}
	}
	if n := querylang.TermCount(script); c.limits.MaxQueryTerms > 0 && n > c.limits.MaxQueryTerms {
		return nil, fmt.Errorf("%w: %d terms, at most %d allowed", ErrTermLimit, n, c.limits.MaxQueryTerms)
	}

	prefilter := c.prunePrefilter(prefilterCandidates(bindings))
	stages, err := c.stages(residual, prefilter, dt, p)
	if err != nil {
		return nil, err
	}

	unit := PlanUnit{Ranges: ranges, Stages: stages, ColumnFamilies: columnFamilies(bindings)}
	plan := &ScanPlan{Query: residual, Units: splitUnit(unit, c.limits.MaxRangesPerUnit)}
	c.logger.Debug("query compiled",
		"query", residual,
		"branches", len(dnf.Branches),
		"ranges", len(ranges),
		"stages", len(stages),
		"units", len(plan.Units),
		"prefilter_fields", len(prefilter))
	return plan, nil
}

// branchBindings are the constraints one conjunction puts on each field.
type branchBindings struct {
	// eq holds the string values a field is compared equal to.
	eq map[string][]string
	// other marks fields constrained in any other way.
	other map[string]bool
	// sourcePrefixes are literal prefixes of SOURCE regexes.
	sourcePrefixes []string
}

func bindBranch(branch querylang.Conjunction) branchBindings {
	b := branchBindings{eq: make(map[string][]string), other: make(map[string]bool)}
	for _, t := range branch.Terms {
		field, lit, op, ok := fieldComparison(t.Node)
		if !ok || t.Negated {
			for _, id := range querylang.Identifiers(t.Node) {
				b.other[id.Name] = true
			}
			continue
		}
		switch {
		case op == querylang.OpEQ && lit.Kind == querylang.LitString:
			b.eq[field] = append(b.eq[field], lit.Str)
		case op == querylang.OpMatches && field == edge.FieldSource:
			prefix, complete := literalPrefix(lit.Str)
			switch {
			case complete:
				b.eq[field] = append(b.eq[field], prefix)
			case prefix != "":
				b.sourcePrefixes = append(b.sourcePrefixes, prefix)
			}
			b.other[field] = true
		default:
			b.other[field] = true
		}
	}
	return b
}

// fieldComparison returns a comparison as FIELD op literal.
func fieldComparison(n querylang.Node) (string, *querylang.Literal, querylang.CompareOp, bool) {
	cmp, ok := querylang.Dereference(n).(*querylang.Comparison)
	if !ok {
		return "", nil, 0, false
	}
	left := querylang.Dereference(cmp.Left)
	right := querylang.Dereference(cmp.Right)
	if id, ok := left.(*querylang.Identifier); ok {
		if lit, ok := right.(*querylang.Literal); ok {
			return id.Name, lit, cmp.Op, true
		}
	}
	if id, ok := right.(*querylang.Identifier); ok {
		if lit, ok := left.(*querylang.Literal); ok && (cmp.Op == querylang.OpEQ || cmp.Op == querylang.OpNE) {
			return id.Name, lit, cmp.Op, true
		}
	}
	return "", nil, 0, false
}

// literalPrefix returns the literal text every match of the anchored
// pattern starts with, and whether the pattern matches only that text.
func literalPrefix(pattern string) (string, bool) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return "", false
	}
	re = re.Simplify()
	for re.Op == syntax.OpCapture && len(re.Sub) == 1 {
		re = re.Sub[0]
	}
	switch re.Op {
	case syntax.OpLiteral:
		if re.Flags&syntax.FoldCase != 0 {
			return "", false
		}
		return string(re.Rune), true
	case syntax.OpConcat:
		for _, sub := range re.Sub {
			switch sub.Op {
			case syntax.OpBeginText, syntax.OpBeginLine, syntax.OpEmptyMatch:
				continue
			case syntax.OpLiteral:
				if sub.Flags&syntax.FoldCase == 0 {
					return string(sub.Rune), false
				}
			}
			break
		}
	}
	return "", false
}

// ranges returns the row ranges of the branch: one exact row per bound
// SOURCE and SINK pair, every row of a bound SOURCE when SINK is not bound,
// and a row prefix per SOURCE regex prefix.
func (b branchBindings) ranges() []store.Range {
	var out []store.Range
	sinks := b.eq[edge.FieldSink]
	for _, source := range b.eq[edge.FieldSource] {
		if len(sinks) == 0 {
			out = append(out, store.RowPrefix(edge.Row(source, "")))
			continue
		}
		for _, sink := range sinks {
			out = append(out, store.ExactRow(edge.Row(source, sink)))
		}
	}
	for _, prefix := range b.sourcePrefixes {
		out = append(out, store.RowPrefix(prefix))
	}
	return out
}

// prefilterCandidates merges the equality bindings of every branch. A
// field that some branch constrains without an equality, or does not
// constrain at all, gets DisablePrefilter since records of that branch may
// carry any value. SOURCE and SINK are bound by the ranges.
func prefilterCandidates(branches []branchBindings) map[string][]string {
	fields := make(map[string]bool)
	for _, b := range branches {
		for f := range b.eq {
			fields[f] = true
		}
		for f := range b.other {
			fields[f] = true
		}
	}
	delete(fields, edge.FieldSource)
	delete(fields, edge.FieldSink)

	out := make(map[string][]string, len(fields))
	for f := range fields {
		for _, b := range branches {
			if b.other[f] || len(b.eq[f]) == 0 {
				out[f] = append(out[f], DisablePrefilter)
				continue
			}
			out[f] = append(out[f], b.eq[f]...)
		}
	}
	return out
}

// prunePrefilter drops fields whose values are empty or contain
// DisablePrefilter. Above MaxPrefilterValues fields the prefilter is
// dropped altogether.
func (c *Compiler) prunePrefilter(candidates map[string][]string) edge.Prefilter {
	p := make(edge.Prefilter)
	for field, values := range candidates {
		if len(values) == 0 || slices.Contains(values, DisablePrefilter) {
			continue
		}
		v := slices.Clone(values)
		slices.Sort(v)
		p[field] = slices.Compact(v)
	}
	if len(p) == 0 {
		return nil
	}
	if len(p) > c.limits.MaxPrefilterValues {
		c.logger.Warn("prefilter too large, prefiltering disabled",
			"fields", len(p), "max", c.limits.MaxPrefilterValues)
		return nil
	}
	return p
}

// columnFamilies returns the TYPE/RELATION allowlist, or nil unless every
// branch binds both TYPE and RELATION by equality.
func columnFamilies(branches []branchBindings) []string {
	var out []string
	for _, b := range branches {
		types, relations := b.eq[edge.FieldType], b.eq[edge.FieldRelation]
		if len(types) == 0 || len(relations) == 0 {
			return nil
		}
		for _, t := range types {
			for _, r := range relations {
				out = append(out, edge.Family(t, r))
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// stages composes the filter stages of a plan.
func (c *Compiler) stages(residual string, prefilter edge.Prefilter, dt edge.DateType, p Params) ([]store.Stage, error) {
	var stages []store.Stage

	dateFilter := false
	if !p.Begin.IsZero() && !p.End.IsZero() {
		opts := map[string]string{
			edge.OptBegin:     p.Begin.UTC().Format(edge.DateLayout),
			edge.OptEnd:       p.End.UTC().Format(edge.DateLayout),
			edge.OptSkipLimit: strconv.Itoa(c.limits.DateFilterSkipLimit),
			edge.OptScanLimit: strconv.FormatInt(c.limits.DateFilterScanLimit, 10),
		}
		kind := edge.KindDateRange
		if dt.IsLoad() {
			kind = edge.KindLoadDate
			opts[edge.OptDateType] = string(dt)
		}
		stages = append(stages, store.Stage{Name: kind, Kind: kind, Options: opts})
		dateFilter = true
	}
	if (!dateFilter || !dt.IsLoad()) && !dt.IsAny() {
		stages = append(stages, store.Stage{
			Name:    edge.KindDateType,
			Kind:    edge.KindDateType,
			Options: map[string]string{edge.OptDateType: string(dt)},
		})
	}

	if residual != "" {
		opts := map[string]string{
			edge.OptQuery: residual,
			edge.OptStats: strconv.FormatBool(p.IncludeStats),
		}
		if len(prefilter) > 0 {
			encoded, err := edge.EncodePrefilter(prefilter)
			if err != nil {
				return nil, fmt.Errorf("%w: prefilter: %w", ErrInvariant, err)
			}
			opts[edge.OptPrefilter] = encoded
		}
		stages = append(stages, store.Stage{Name: edge.KindExpression, Kind: edge.KindExpression, Options: opts})
	}

	for _, custom := range slices.Concat(c.limits.CustomStages, p.Stages) {
		if custom.Kind == "" {
			return nil, fmt.Errorf("%w: custom stage %q has no kind", ErrInvalidParams, custom.Name)
		}
		st := store.Stage{Name: custom.Name, Kind: custom.Kind, Options: cloneOptions(custom.Options)}
		if st.Name == "" {
			st.Name = st.Kind
		}
		stages = append(stages, st)
	}

	for i := range stages {
		stages[i].Priority = c.limits.BasePriority + i
	}
	return stages, nil
}
