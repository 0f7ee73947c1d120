package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"sieve/internal/edge"
	"sieve/internal/record"
	"sieve/internal/store"
)

// loadBatch is the number of entries written per transaction.
const loadBatch = 512

func newLoadCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load edges and record text into the edge database",
		Long: "Load edges (JSON lines, one edge object per line) and the text fields of\n" +
			"records, stored as term entries for excerpt lookups.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			edgeGlobs, _ := cmd.Flags().GetStringSlice("edges")
			recordGlobs, _ := cmd.Flags().GetStringSlice("records")
			if len(edgeGlobs) == 0 && len(recordGlobs) == 0 {
				return fmt.Errorf("nothing to load: set --edges or --records")
			}

			db, err := e.openDB(cmd, false)
			if err != nil {
				return err
			}
			defer db.Close()
			w := &batchWriter{ctx: ctx, dst: db}

			edges, err := loadEdges(ctx, w, edgeGlobs)
			if err != nil {
				return err
			}
			terms, records, err := loadRecordTerms(cmd, w, recordGlobs)
			if err != nil {
				return err
			}
			if err := w.flush(); err != nil {
				return err
			}
			e.logger.Info("load complete", "edges", edges, "records", records, "term_entries", terms)

			p := newPrinter(cmd)
			if p.isJSON() {
				return p.json(map[string]int{"edges": edges, "records": records, "termEntries": terms})
			}
			p.kv([][2]string{
				{"Edges", strconv.Itoa(edges)},
				{"Records", strconv.Itoa(records)},
				{"Term entries", strconv.Itoa(terms)},
			})
			return nil
		},
	}
	addDBFlag(cmd)
	cmd.Flags().StringSlice("edges", nil, "edge files (JSON lines); glob patterns")
	cmd.Flags().StringSlice("records", nil, "record files whose text fields are stored; glob patterns")
	cmd.Flags().String("format", "auto", "record format: auto, json or logfmt")
	cmd.Flags().StringSlice("text", nil, "logfmt keys holding text fields")
	return cmd
}

// batchWriter buffers entries and writes them loadBatch at a time.
type batchWriter struct {
	ctx     context.Context
	dst     store.Writer
	pending []store.Entry
}

func (w *batchWriter) add(entries ...store.Entry) error {
	w.pending = append(w.pending, entries...)
	if len(w.pending) < loadBatch {
		return nil
	}
	return w.flush()
}

func (w *batchWriter) flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	err := w.dst.Put(w.ctx, w.pending...)
	w.pending = w.pending[:0]
	return err
}

func loadEdges(ctx context.Context, w *batchWriter, patterns []string) (int, error) {
	if len(patterns) == 0 {
		return 0, nil
	}
	paths, err := record.DiscoverFiles(patterns...)
	if err != nil {
		return 0, err
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("no edge files match %q", patterns)
	}
	n := 0
	for _, path := range paths {
		edges, err := readEdges(ctx, path)
		if err != nil {
			return n, err
		}
		for _, ed := range edges {
			entry, err := ed.Entry()
			if err != nil {
				return n, fmt.Errorf("%s: %w", path, err)
			}
			if err := w.add(entry); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// readEdges reads one JSON edge per line. Blank lines and lines starting
// with '#' are skipped.
func readEdges(ctx context.Context, path string) ([]edge.Edge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var edges []edge.Edge
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		var ed edge.Edge
		if err := json.Unmarshal(line, &ed); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if ed.Source == "" || ed.Type == "" {
			return nil, fmt.Errorf("%s:%d: edge needs source and type", path, lineNo)
		}
		edges = append(edges, ed)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return edges, nil
}

func loadRecordTerms(cmd *cobra.Command, w *batchWriter, patterns []string) (terms, records int, err error) {
	if len(patterns) == 0 {
		return 0, 0, nil
	}
	formatName, _ := cmd.Flags().GetString("format")
	textFields, _ := cmd.Flags().GetStringSlice("text")
	format, err := record.ParseFormat(formatName)
	if err != nil {
		return 0, 0, err
	}
	recs, err := record.Load(cmd.Context(), patterns, record.Options{Format: format, TextFields: textFields}, 4)
	if err != nil {
		return 0, 0, err
	}
	for _, r := range recs {
		entries, err := r.TermEntries()
		if err != nil {
			return terms, records, err
		}
		if err := w.add(entries...); err != nil {
			return terms, records, err
		}
		terms += len(entries)
		records++
	}
	return terms, records, nil
}
