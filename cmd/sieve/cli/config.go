package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newConfigCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.config(cmd)
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			if p.isJSON() {
				return p.json(cfg)
			}
			stages := make([]string, len(cfg.CustomStages))
			for i, st := range cfg.CustomStages {
				stages[i] = st.Kind
				if st.Name != "" {
					stages[i] = st.Name + "(" + st.Kind + ")"
				}
			}
			p.kv([][2]string{
				{"Max query terms", strconv.Itoa(cfg.MaxQueryTerms)},
				{"Max prefilter values", strconv.Itoa(cfg.MaxPrefilterValues)},
				{"Base priority", strconv.Itoa(cfg.BasePriority)},
				{"Date filter skip limit", strconv.Itoa(cfg.DateFilterSkipLimit)},
				{"Date filter scan limit", strconv.FormatInt(cfg.DateFilterScanLimit, 10)},
				{"Max ranges per unit", strconv.Itoa(cfg.MaxRangesPerUnit)},
				{"Max branches", strconv.Itoa(cfg.MaxBranches)},
				{"Include stats", strconv.FormatBool(cfg.IncludeStats)},
				{"Excerpt fields", cfg.ExcerptFields},
				{"Excerpt rate", fmt.Sprintf("%g/s", cfg.ExcerptRatePerSecond)},
				{"Eval workers", strconv.Itoa(cfg.EvalWorkers)},
				{"Checkpoint TTL", cfg.CheckpointTTL},
				{"Checkpoint sweep", cfg.CheckpointSweepCron},
				{"Log level", cfg.LogLevel},
				{"Custom stages", strings.Join(stages, ", ")},
			})
			return nil
		},
	})
	return cmd
}
