package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/pistat/pistat/accumulate"
	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
	"github.com/ZanzyTHEbar/pistat/pistat/solver/memsolver"
	"github.com/ZanzyTHEbar/pistat/pistat/transfer"
)

// newMergeCmd creates the merge command
func newMergeCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge <base> <incoming>...",
		Short: "Accumulate records onto a base record offline",
		Long: `Accumulate records onto a base record offline.

The base record is loaded into an in-memory solver and every incoming record
(bare or enveloped) is accumulated onto it in order. The result is written as
a bare record.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, _, err := readRecordFile(args[0])
			if err != nil {
				return err
			}
			target, err := memsolver.FromRecord(base)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			for _, path := range args[1:] {
				rec, _, err := readRecordFile(path)
				if err != nil {
					return err
				}
				if err := accumulate.AccumulateOnto(target, rec); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				a.logger.Debug().Str("file", path).Int("down", rec.Count(branchstats.Down)).Int("up", rec.Count(branchstats.Up)).Msg("accumulated")
			}

			merged := target.Snapshot()
			if err := transfer.PersistRecord(output, merged); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n%s\n", output, branchstats.Summarize(merged))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write the merged record to")
	cmd.MarkFlagRequired("output")
	return cmd
}
