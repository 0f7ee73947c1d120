package eval

import (
	"fmt"
	"slices"
	"strings"

	"sieve/internal/querylang"
	"sieve/internal/termoffset"
)

// function is a registered query function. validate runs once at compile
// time; eval runs per record.
type function struct {
	validate func(n *querylang.Function) error
	eval     func(c *call, n *querylang.Function) Truth
}

var builtins = map[string]function{
	"filter:isNull":      {validate: needFields, eval: evalIsNull},
	"filter:isNotNull":   {validate: needFields, eval: evalIsNotNull},
	"filter:includeText": {validate: validateIncludeText, eval: evalIncludeText},
	"content:phrase":     {validate: validatePhrase, eval: evalPhrase},
	"content:within":     {validate: validateWithin, eval: evalWithin},
	"f:unique_by_day":    {validate: needFields, eval: evalOption},
}

// Functions returns the names of the registered functions, sorted.
func Functions() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func needFields(n *querylang.Function) error {
	if len(querylang.Identifiers(n)) == 0 {
		return fmt.Errorf("%w: at least one field is required", ErrInvalidArguments)
	}
	return nil
}

func fieldsOf(n *querylang.Function) []string {
	var fields []string
	for _, id := range querylang.Identifiers(n) {
		if !slices.Contains(fields, id.Name) {
			fields = append(fields, id.Name)
		}
	}
	return fields
}

func evalIsNull(c *call, n *querylang.Function) Truth {
	for _, field := range fieldsOf(n) {
		res := c.resolve(field)
		if res.Unresolved {
			continue
		}
		if len(res.Values) > 0 {
			return False
		}
	}
	return True
}

func evalIsNotNull(c *call, n *querylang.Function) Truth {
	for _, field := range fieldsOf(n) {
		res := c.resolve(field)
		if res.Unresolved {
			return Assumed
		}
		if len(res.Values) > 0 {
			return True
		}
	}
	return False
}

// evalOption is used by query options, which constrain the result set
// rather than a single record.
func evalOption(*call, *querylang.Function) Truth {
	return True
}

func stringArg(n querylang.Node) (string, bool) {
	lit, ok := querylang.Dereference(n).(*querylang.Literal)
	if !ok || lit.Kind != querylang.LitString {
		return "", false
	}
	return lit.Str, true
}

func validateIncludeText(n *querylang.Function) error {
	if len(n.Args) != 2 {
		return fmt.Errorf("%w: expected a field and a text, got %d arguments", ErrInvalidArguments, len(n.Args))
	}
	if len(querylang.Identifiers(n.Args[0])) == 0 {
		return fmt.Errorf("%w: first argument must name a field", ErrInvalidArguments)
	}
	if _, ok := stringArg(n.Args[1]); !ok {
		return fmt.Errorf("%w: second argument must be a string", ErrInvalidArguments)
	}
	return nil
}

// evalIncludeText matches the original value exactly and stops at the first
// matching value.
func evalIncludeText(c *call, n *querylang.Function) Truth {
	text, _ := stringArg(n.Args[1])
	unresolved := false
	for _, id := range querylang.Identifiers(n.Args[0]) {
		res := c.resolve(id.Name)
		if res.Unresolved {
			unresolved = true
			continue
		}
		for _, v := range res.Values {
			if v.Text() == text {
				c.hit(id.Name, v)
				return True
			}
		}
	}
	if unresolved {
		return Assumed
	}
	return False
}

// phraseArgs is the parsed form of a content function call.
type phraseArgs struct {
	field  string
	window int
	terms  []string
}

func fieldArg(n querylang.Node) (string, bool) {
	id, ok := querylang.Dereference(n).(*querylang.Identifier)
	if !ok {
		return "", false
	}
	return id.Name, true
}

func termArgs(args []querylang.Node) ([]string, error) {
	terms := make([]string, 0, len(args))
	for _, a := range args {
		s, ok := stringArg(a)
		if !ok {
			return nil, fmt.Errorf("%w: term %s must be a string", ErrInvalidArguments, a)
		}
		terms = append(terms, strings.ToLower(s))
	}
	if len(terms) < 2 {
		return nil, fmt.Errorf("%w: at least two terms are required", ErrInvalidArguments)
	}
	return terms, nil
}

func parsePhrase(n *querylang.Function) (phraseArgs, error) {
	if len(n.Args) == 0 {
		return phraseArgs{}, fmt.Errorf("%w: missing field", ErrInvalidArguments)
	}
	field, ok := fieldArg(n.Args[0])
	if !ok {
		return phraseArgs{}, fmt.Errorf("%w: first argument must be a field", ErrInvalidArguments)
	}
	terms, err := termArgs(n.Args[1:])
	if err != nil {
		return phraseArgs{}, err
	}
	return phraseArgs{field: field, terms: terms}, nil
}

func parseWithin(n *querylang.Function) (phraseArgs, error) {
	if len(n.Args) < 2 {
		return phraseArgs{}, fmt.Errorf("%w: expected a field, a distance and terms", ErrInvalidArguments)
	}
	field, ok := fieldArg(n.Args[0])
	if !ok {
		return phraseArgs{}, fmt.Errorf("%w: first argument must be a field", ErrInvalidArguments)
	}
	lit, ok := querylang.Dereference(n.Args[1]).(*querylang.Literal)
	if !ok || lit.Kind != querylang.LitInt || lit.Int < 0 {
		return phraseArgs{}, fmt.Errorf("%w: distance must be a non-negative integer", ErrInvalidArguments)
	}
	terms, err := termArgs(n.Args[2:])
	if err != nil {
		return phraseArgs{}, err
	}
	return phraseArgs{field: field, window: int(lit.Int), terms: terms}, nil
}

func validatePhrase(n *querylang.Function) error {
	_, err := parsePhrase(n)
	return err
}

func validateWithin(n *querylang.Function) error {
	_, err := parseWithin(n)
	return err
}

// termFrequencies returns the list for field. A missing list on an
// incomplete field is unresolved and makes the call partial.
func (c *call) termFrequencies(field string) (tf *termoffset.TermFrequencyList, unresolved bool) {
	tf = c.offsets.TermFrequencies(field)
	if tf == nil && c.ev.incomplete[field] {
		c.partial = append(c.partial, field)
		return nil, true
	}
	return tf, false
}

// evalPhrase finds the terms at consecutive offsets and records every
// occurrence as a phrase position of the call.
func evalPhrase(c *call, n *querylang.Function) Truth {
	args, _ := parsePhrase(n)
	tf, unresolved := c.termFrequencies(args.field)
	if unresolved {
		return Assumed
	}
	if tf == nil {
		return False
	}

	found := false
	for _, rid := range tf.RecordIDs(args.terms[0]) {
		for _, start := range tf.Offsets(args.terms[0], rid) {
			if !consecutive(tf, rid, args.terms[1:], start+1) {
				continue
			}
			c.offsets.AddPosition(args.field, rid, start, start+len(args.terms)-1)
			found = true
		}
	}
	return truthOf(found)
}

func consecutive(tf *termoffset.TermFrequencyList, rid string, terms []string, next int) bool {
	for i, term := range terms {
		if _, ok := slices.BinarySearch(tf.Offsets(term, rid), next+i); !ok {
			return false
		}
	}
	return true
}

// evalWithin matches when every term occurs inside a window of args.window
// tokens, in any order.
func evalWithin(c *call, n *querylang.Function) Truth {
	args, _ := parseWithin(n)
	tf, unresolved := c.termFrequencies(args.field)
	if unresolved {
		return Assumed
	}
	if tf == nil {
		return False
	}

	found := false
	for _, rid := range tf.RecordIDs(args.terms[0]) {
		offsets := make([][]int, len(args.terms))
		var starts []int
		for i, term := range args.terms {
			offsets[i] = tf.Offsets(term, rid)
			starts = append(starts, offsets[i]...)
		}
		slices.Sort(starts)
		starts = slices.Compact(starts)

		for _, start := range starts {
			end, ok := windowEnd(offsets, start, start+args.window)
			if !ok {
				continue
			}
			c.offsets.AddPosition(args.field, rid, start, end)
			found = true
		}
	}
	return truthOf(found)
}

// windowEnd reports whether every offset list has an entry in [lo, hi] and
// returns the largest of the first such entries.
func windowEnd(offsets [][]int, lo, hi int) (int, bool) {
	end := lo
	for _, list := range offsets {
		i, _ := slices.BinarySearch(list, lo)
		if i == len(list) || list[i] > hi {
			return 0, false
		}
		end = max(end, list[i])
	}
	return end, true
}
