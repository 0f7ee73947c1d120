package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sieve/internal/edge"
	"sieve/internal/query"
	"sieve/internal/querylang"
	"sieve/internal/rewrite"
)

func newRewriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rewrite <query>",
		Short: "Print the normalized form of a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := querylang.Parse(args[0])
			if err != nil {
				return err
			}
			normalized := rewrite.Normalize(script)
			p := newPrinter(cmd)
			if p.isJSON() {
				return p.json(map[string]string{"query": args[0], "normalized": normalized.String()})
			}
			_, err = fmt.Fprintln(p.w, normalized.String())
			return err
		},
	}
}

func newCompileCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <query>",
		Short: "Compile a query into a scan plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := e.compile(cmd, args[0])
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			if p.isJSON() {
				return p.json(plan)
			}
			p.table([]string{"UNIT", "PART", "VALUE"}, planRows(plan))
			return nil
		},
	}
	addCompileFlags(cmd)
	return cmd
}

func addCompileFlags(cmd *cobra.Command) {
	cmd.Flags().String("begin", "", "first edge date (yyyymmdd or RFC 3339)")
	cmd.Flags().String("end", "", "last edge date (yyyymmdd or RFC 3339)")
	cmd.Flags().String("date-type", "", "date the range applies to: EVENT, ACTIVITY, ANY, LOAD, ACTIVITY_LOAD or ANY_LOAD")
	cmd.Flags().Int("max-terms", 0, "maximum query terms (default: config maxQueryTerms)")
	cmd.Flags().Bool("stats", false, "include statistics edges (default: config includeStats)")
}

// compile compiles q with the configured limits and the compile flags of
// cmd.
func (e *env) compile(cmd *cobra.Command, q string) (*query.ScanPlan, error) {
	cfg, err := e.config(cmd)
	if err != nil {
		return nil, err
	}
	limits := cfg.Limits()
	if cmd.Flags().Changed("max-terms") {
		limits.MaxQueryTerms, _ = cmd.Flags().GetInt("max-terms")
	}

	params := query.Params{IncludeStats: cfg.IncludeStats}
	if cmd.Flags().Changed("stats") {
		params.IncludeStats, _ = cmd.Flags().GetBool("stats")
	}
	begin, _ := cmd.Flags().GetString("begin")
	end, _ := cmd.Flags().GetString("end")
	if params.Begin, err = parseDate(begin); err != nil {
		return nil, fmt.Errorf("--begin: %w", err)
	}
	if params.End, err = parseDate(end); err != nil {
		return nil, fmt.Errorf("--end: %w", err)
	}
	dateType, _ := cmd.Flags().GetString("date-type")
	params.DateType = edge.DateType(strings.ToUpper(dateType))

	return query.NewCompiler(limits, e.logger).Compile(q, params)
}

// parseDate accepts edge dates (yyyymmdd) and RFC 3339 timestamps. Empty
// is the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(edge.DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is neither yyyymmdd nor RFC 3339", s)
	}
	return t.UTC(), nil
}

func planRows(plan *query.ScanPlan) [][]string {
	rows := [][]string{{"", "query", plan.Query}}
	for i, u := range plan.Units {
		unit := strconv.Itoa(i)
		for _, r := range u.Ranges {
			rows = append(rows, []string{unit, "range", r.String()})
		}
		for _, st := range u.Stages {
			rows = append(rows, []string{unit, "stage", st.String()})
		}
		if len(u.ColumnFamilies) > 0 {
			rows = append(rows, []string{unit, "columns", strings.Join(u.ColumnFamilies, ", ")})
		}
		if u.LastKey != nil {
			rows = append(rows, []string{unit, "after", u.LastKey.String()})
		}
	}
	return rows
}
