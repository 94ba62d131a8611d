package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
	"github.com/ZanzyTHEbar/pistat/pistat/transfer"
)

// readRecordFile loads a bare record or a sealed envelope. env is nil for a
// bare record.
func readRecordFile(path string) (*branchstats.Record, *transfer.Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if bytes.HasPrefix(data, []byte("PIEV")) {
		env, err := transfer.Open(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		return env.Record, env, nil
	}
	rec, err := transfer.Deserialize(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil, nil
}

// newInspectCmd creates the inspect command
func newInspectCmd(a *app) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Summarize a record or envelope file",
		Long: `Summarize a record or envelope file.

Prints both depths and per-direction aggregates: variable count, total
branchings, branch-weighted mean scores, inferences and cutoffs. With
--verbose every entry is listed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, env, err := readRecordFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if env != nil {
				fmt.Fprintf(out, "envelope %s session=%q backend=%q source=%q created=%s\n",
					env.ID, env.Session, env.Backend, env.Source, env.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"))
			}
			fmt.Fprintln(out, branchstats.Summarize(rec))
			fmt.Fprintf(out, "vars branched both ways: %d of %d\n",
				rec.BranchedBothWays().GetCardinality(), rec.BranchedAny().GetCardinality())
			if verbose {
				fmt.Fprintln(out, rec)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every entry")
	return cmd
}
