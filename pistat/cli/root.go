package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	internal "github.com/ZanzyTHEbar/pistat/pistat"
	"github.com/ZanzyTHEbar/pistat/pistat/config"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	cfg        *config.Config
	logger     zerolog.Logger
}

// NewRootCmd creates the root cobra command
func NewRootCmd(version, commit, date string) *cobra.Command {
	a := &app{logger: internal.GetLogger()}

	rootCmd := &cobra.Command{
		Use:   "pistat",
		Short: "Capture, ship and accumulate branch-and-bound branching statistics",
		Long: `pistat moves the branching history of a branch-and-bound solve between
workers so each one can warm start from what the others have learned.

Records are written in a fixed little-endian binary layout. Envelopes add a
transfer id and a checksum so receivers apply every record exactly once.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = internal.NewLogger(cfg.Logging)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default searches ./config.yaml and ~/.config/pistat)")

	rootCmd.AddCommand(newInspectCmd(a))
	rootCmd.AddCommand(newMergeCmd(a))
	rootCmd.AddCommand(newSendCmd(a))
	rootCmd.AddCommand(newServeCmd(a))

	return rootCmd
}
