package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sieve/internal/query"
)

func newCheckpointsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Manage stored checkpoints",
	}
	cmd.PersistentFlags().String("db", "", "edge database (default: <home>/sieve.db)")
	cmd.AddCommand(
		newCheckpointsListCmd(e),
		newCheckpointsDeleteCmd(e),
		newCheckpointsSweepCmd(e),
	)
	return cmd
}

func newCheckpointsListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored checkpoints, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			cps, err := s.checkpoints.List(cmd.Context())
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			if p.isJSON() {
				return p.json(cps)
			}
			var rows [][]string
			for _, cp := range cps {
				ranges := 0
				for _, u := range cp.Units {
					ranges += len(u.Ranges)
				}
				rows = append(rows, []string{
					cp.ID.String(),
					cp.QueryID.String(),
					cp.Created.Format(time.RFC3339),
					strconv.Itoa(len(cp.Units)),
					strconv.Itoa(ranges),
				})
			}
			p.table([]string{"ID", "QUERY", "CREATED", "UNITS", "RANGES"}, rows)
			return nil
		},
	}
}

func newCheckpointsDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete stored checkpoints",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, len(args))
			for i, arg := range args {
				id, err := uuid.Parse(arg)
				if err != nil {
					return fmt.Errorf("checkpoint id %q: %w", arg, err)
				}
				ids[i] = id
			}
			s, err := e.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			for _, id := range ids {
				if err := s.checkpoints.Delete(cmd.Context(), id); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCheckpointsSweepCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete checkpoints older than the configured TTL",
		Long: "Delete checkpoints older than checkpointTtl. With --schedule, keep running\n" +
			"and sweep on the checkpointSweepCron schedule until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.config(cmd)
			if err != nil {
				return err
			}
			ttl := cfg.CheckpointRetention()
			if cmd.Flags().Changed("ttl") {
				ttl, _ = cmd.Flags().GetDuration("ttl")
			}
			if ttl <= 0 {
				return fmt.Errorf("checkpoints never expire: set checkpointTtl or --ttl")
			}

			s, err := e.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			sweeper := query.NewSweeper(s.checkpoints, ttl, e.logger)

			if schedule, _ := cmd.Flags().GetBool("schedule"); !schedule {
				n, err := sweeper.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d checkpoint(s)\n", n)
				return err
			}

			if cfg.CheckpointSweepCron == "" {
				return fmt.Errorf("checkpointSweepCron is not set")
			}
			if err := sweeper.Start(cfg.CheckpointSweepCron); err != nil {
				return err
			}
			for {
				select {
				case <-cmd.Context().Done():
					return sweeper.Stop()
				case <-sweeper.Swept():
					last, _ := sweeper.Last()
					if last.Err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s sweep failed: %v\n", last.At.Format(time.RFC3339), last.Err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %d checkpoint(s)\n", last.At.Format(time.RFC3339), last.Deleted)
				}
			}
		},
	}
	cmd.Flags().Duration("ttl", 0, "override checkpointTtl")
	cmd.Flags().Bool("schedule", false, "run on the checkpointSweepCron schedule until interrupted")
	return cmd
}
