package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sieve/internal/config"
	"sieve/internal/document"
	"sieve/internal/eval"
	"sieve/internal/excerpt"
	"sieve/internal/record"
	"sieve/internal/store"
)

// evalResult is one evaluated record as printed by eval and excerpt.
type evalResult struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	Matched       bool       `json:"matched"`
	State         eval.State `json:"state"`
	PartialFields []string   `json:"partialFields,omitempty"`
	HitTerms      []string   `json:"hitTerms,omitempty"`
	PhraseIndexes string     `json:"phraseIndexes,omitempty"`
	Excerpts      []string   `json:"excerpts,omitempty"`
}

// evaluated is a record with its document after evaluation.
type evaluated struct {
	record record.Record
	doc    *document.Document
	result eval.Result
}

func addRecordFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("records", nil, "record files; glob patterns, ** matches directories (required)")
	cmd.Flags().String("format", "auto", "record format: auto, json or logfmt")
	cmd.Flags().StringSlice("text", nil, "logfmt keys holding text fields")
	cmd.Flags().StringSlice("incomplete", nil, "fields whose values may be missing")
	cmd.Flags().Int("workers", 0, "evaluation workers (default: config evalWorkers)")
	_ = cmd.MarkFlagRequired("records")
}

func newEvalCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <query>",
		Short: "Evaluate a query against records",
		Long: "Evaluate a query against every record of the matching files and print\n" +
			"the matching records, one JSON object per line with -o json.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.config(cmd)
			if err != nil {
				return err
			}
			results, err := e.evaluate(cmd, cfg, args[0])
			if err != nil {
				return err
			}
			all, _ := cmd.Flags().GetBool("all")
			return printResults(newPrinter(cmd), results, all)
		},
	}
	addRecordFlags(cmd)
	cmd.Flags().Bool("all", false, "print records that did not match too")
	return cmd
}

func workerCount(cmd *cobra.Command, cfg *config.Config) int {
	if cmd.Flags().Changed("workers") {
		n, _ := cmd.Flags().GetInt("workers")
		return n
	}
	return cfg.EvalWorkers
}

// evaluate loads the records of cmd and evaluates q against each.
func (e *env) evaluate(cmd *cobra.Command, cfg *config.Config, q string) ([]evaluated, error) {
	ctx := cmd.Context()
	patterns, _ := cmd.Flags().GetStringSlice("records")
	formatName, _ := cmd.Flags().GetString("format")
	textFields, _ := cmd.Flags().GetStringSlice("text")
	incomplete, _ := cmd.Flags().GetStringSlice("incomplete")
	workers := workerCount(cmd, cfg)

	format, err := record.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}
	ev, err := eval.CompileQuery(q, eval.Options{
		Arithmetic:       eval.HitListArithmetic{},
		IncompleteFields: incomplete,
	})
	if err != nil {
		return nil, err
	}
	records, err := record.Load(ctx, patterns, record.Options{Format: format, TextFields: textFields}, workers)
	if err != nil {
		return nil, err
	}

	inputs := make([]eval.Input, len(records))
	for i, r := range records {
		c, doc := r.Context()
		inputs[i] = eval.Input{Context: c, Doc: doc}
	}
	results, err := eval.EvaluateAll(ctx, ev, inputs, workers)
	if err != nil {
		return nil, err
	}

	out := make([]evaluated, len(records))
	matched := 0
	for i := range records {
		out[i] = evaluated{record: records[i], doc: inputs[i].Doc, result: results[i]}
		if results[i].Matched {
			matched++
		}
	}
	e.logger.Debug("records evaluated", "records", len(records), "matched", matched, "workers", workers)
	return out, nil
}

func (r evaluated) view() evalResult {
	v := evalResult{
		ID:            r.record.ID,
		Source:        r.record.Source,
		Matched:       r.result.Matched,
		State:         r.result.State,
		PartialFields: r.result.PartialFields,
		Excerpts:      r.doc.Values(document.HitExcerptAttr),
	}
	for _, h := range r.result.HitTerms {
		v.HitTerms = append(v.HitTerms, h.String())
	}
	if attr, ok := r.doc.First(document.PhraseIndexesAttr); ok && r.result.Matched {
		v.PhraseIndexes = attr.Value
	}
	return v
}

func printResults(p *printer, results []evaluated, all bool) error {
	var rows [][]string
	for _, r := range results {
		if !r.result.Matched && !all {
			continue
		}
		v := r.view()
		if p.isJSON() {
			if err := p.line(v); err != nil {
				return err
			}
			continue
		}
		detail := strings.Join(v.HitTerms, " ")
		if len(v.Excerpts) > 0 {
			detail = strings.Join(v.Excerpts, " | ")
		}
		rows = append(rows, []string{v.ID, fmt.Sprint(v.Matched), string(v.State), detail, v.Source})
	}
	if !p.isJSON() {
		p.table([]string{"ID", "MATCHED", "STATE", "DETAIL", "SOURCE"}, rows)
	}
	return nil
}

func newExcerptCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "excerpt <query>",
		Short: "Evaluate a query against records and extract phrase excerpts",
		Long: "Evaluate a query against records, then look up the text around every\n" +
			"phrase hit in the term entries of the edge database (see load --records).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.config(cmd)
			if err != nil {
				return err
			}
			fields, err := cfg.Excerpts()
			if err != nil {
				return err
			}
			if spec, _ := cmd.Flags().GetString("fields"); spec != "" {
				if fields, err = excerpt.ParseFields(spec); err != nil {
					return fmt.Errorf("--fields: %w", err)
				}
			}
			if len(fields) == 0 {
				return fmt.Errorf("no excerpt fields: set --fields or excerptFields in the config")
			}

			results, err := e.evaluate(cmd, cfg, args[0])
			if err != nil {
				return err
			}

			db, err := e.openDB(cmd, true)
			if err != nil {
				return err
			}
			defer db.Close()
			reg, err := e.registry(cfg)
			if err != nil {
				return err
			}
			t := &excerpt.Transform{
				Fields:   fields,
				Scanner:  store.NewScanner(db, reg),
				Limiter:  cfg.ExcerptLimiter(),
				Priority: cfg.BasePriority,
				Logger:   e.logger,
			}
			if err := applyExcerpts(cmd.Context(), t, results, workerCount(cmd, cfg)); err != nil {
				return err
			}
			return printResults(newPrinter(cmd), results, false)
		},
	}
	addRecordFlags(cmd)
	addDBFlag(cmd)
	cmd.Flags().String("fields", "", "excerpt fields, e.g. BODY/2,SUBJECT/1 (default: config excerptFields)")
	return cmd
}

// applyExcerpts adds excerpts to the documents of matching records, with
// at most workers lookups running at once.
func applyExcerpts(ctx context.Context, t *excerpt.Transform, results []evaluated, workers int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, workers))
	for _, r := range results {
		if !r.result.Matched {
			continue
		}
		g.Go(func() error {
			if err := t.Apply(gctx, r.doc); err != nil {
				return fmt.Errorf("excerpt %s: %w", r.record.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}
