package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sieve/internal/edge"
	"sieve/internal/query"
	"sieve/internal/store"
	storebolt "sieve/internal/store/bolt"
)

// session is an open database with the engine that scans it.
type session struct {
	db          *storebolt.Store
	engine      *query.Engine
	checkpoints *query.BoltCheckpoints
}

func (s *session) Close() error {
	return s.db.Close()
}

// openSession opens the database and an engine over it. Stored checkpoints
// live in the same database.
func (e *env) openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := e.config(cmd)
	if err != nil {
		return nil, err
	}
	reg, err := e.registry(cfg)
	if err != nil {
		return nil, err
	}
	db, err := e.openDB(cmd, false)
	if err != nil {
		return nil, err
	}
	cps, err := query.NewBoltCheckpoints(db.DB())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &session{
		db:          db,
		engine:      query.New(store.NewScanner(db, reg), cps, e.logger),
		checkpoints: cps,
	}, nil
}

func addScanFlags(cmd *cobra.Command) {
	addDBFlag(cmd)
	cmd.Flags().Int("limit", 0, "pause after this many edges; 0 scans everything")
	cmd.Flags().String("checkpoint-out", "", "write checkpoint tokens of a paused scan to this file (default: stderr)")
	cmd.Flags().Bool("save", false, "store the checkpoints of a paused scan in the database instead of printing tokens")
}

func newScanCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <query>",
		Short: "Execute a query against the edge database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := e.compile(cmd, args[0])
			if err != nil {
				return err
			}
			s, err := e.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			x := s.engine.Execute(cmd.Context(), plan)
			return e.drain(cmd, s, x)
		},
	}
	addCompileFlags(cmd)
	addScanFlags(cmd)
	return cmd
}

func newResumeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume paused scans from checkpoint tokens or stored checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, _ := cmd.Flags().GetString("token")
			rawID, _ := cmd.Flags().GetString("id")
			if (token == "") == (rawID == "") {
				return fmt.Errorf("set exactly one of --token and --id")
			}
			s, err := e.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()

			if token != "" {
				cp, err := query.DecodeCheckpoint(strings.TrimSpace(token))
				if err != nil {
					return err
				}
				return e.drain(cmd, s, s.engine.Resume(ctx, cp))
			}

			id, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("checkpoint id %q: %w", rawID, err)
			}
			x, err := s.engine.ResumeStored(ctx, id)
			if err != nil {
				return err
			}
			if err := e.drain(cmd, s, x); err != nil {
				return err
			}
			if !x.Done() {
				// What is left was emitted as new checkpoints.
				return s.checkpoints.Delete(ctx, id)
			}
			return nil
		},
	}
	addScanFlags(cmd)
	cmd.Flags().String("token", "", "checkpoint token")
	cmd.Flags().String("id", "", "stored checkpoint id")
	return cmd
}

// drain prints the edges of x up to --limit and, when x is paused,
// emits or stores its checkpoints.
func (e *env) drain(cmd *cobra.Command, s *session, x *query.Execution) error {
	limit, _ := cmd.Flags().GetInt("limit")
	p := newPrinter(cmd)

	var rows [][]string
	n := 0
	for entry, err := range x.Results() {
		if err != nil {
			return err
		}
		ed, err := edge.Decode(entry)
		if err != nil {
			return err
		}
		if p.isJSON() {
			if err := p.line(ed); err != nil {
				return err
			}
		} else {
			rows = append(rows, edgeRow(ed))
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	if !p.isJSON() {
		p.table([]string{"SOURCE", "SINK", "TYPE", "RELATION", "DATE", "CODE", "COUNT", "ATTRIBUTES"}, rows)
	}
	e.logger.Debug("scan finished", "query", x.QueryID(), "edges", n, "done", x.Done())

	if x.Done() {
		return nil
	}
	return e.emitCheckpoints(cmd, s, x)
}

func edgeRow(ed edge.Edge) []string {
	var attrs []string
	for _, a := range []string{ed.Attribute1, ed.Attribute2, ed.Attribute3} {
		if a != "" {
			attrs = append(attrs, a)
		}
	}
	return []string{
		ed.Source,
		ed.Sink,
		ed.Type,
		ed.Relation,
		ed.Date.Format(edge.DateLayout),
		ed.DateCode,
		strconv.FormatInt(ed.Count, 10),
		strings.Join(attrs, "/"),
	}
}

func (e *env) emitCheckpoints(cmd *cobra.Command, s *session, x *query.Execution) error {
	if save, _ := cmd.Flags().GetBool("save"); save {
		cps, err := s.engine.SaveCheckpoints(cmd.Context(), x)
		if err != nil {
			return err
		}
		for _, cp := range cps {
			fmt.Fprintf(cmd.ErrOrStderr(), "checkpoint saved: %s\n", cp.ID)
		}
		return nil
	}

	var w io.Writer = cmd.ErrOrStderr()
	if path, _ := cmd.Flags().GetString("checkpoint-out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	var errs []error
	for _, cp := range x.Checkpoint() {
		token, err := query.EncodeCheckpoint(cp)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := fmt.Fprintln(w, token); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}
