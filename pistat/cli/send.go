package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/pistat/pistat/ledger"
	"github.com/ZanzyTHEbar/pistat/pistat/transfer"
	"github.com/ZanzyTHEbar/pistat/pistat/transport"
	"github.com/ZanzyTHEbar/pistat/pistat/warmstart"
)

// newSendCmd creates the send command
func newSendCmd(a *app) *cobra.Command {
	var peers []string

	cmd := &cobra.Command{
		Use:   "send <file>",
		Short: "Send a record to running pistat receivers",
		Long: `Send a record to running pistat receivers.

A bare record is wrapped in a new envelope for the configured session; an
envelope file is resent as is, so receivers that already applied it skip it.
Peers default to transport.peers from the config.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, env, err := readRecordFile(args[0])
			if err != nil {
				return err
			}
			if env == nil {
				env = transfer.NewEnvelope(a.cfg.Session, a.cfg.Backend, a.cfg.Worker, rec)
			}
			if len(peers) == 0 {
				peers = a.cfg.Transport.Peers
			}
			if len(peers) == 0 {
				return fmt.Errorf("no peers: pass --to or set transport.peers")
			}

			tr := transport.NewWebsocketTransport(transport.WebsocketConfig{
				SendTimeout: a.cfg.Transport.SendTimeout(),
				Logger:      a.logger,
			})
			defer tr.Close()

			svc, err := warmstart.NewService(warmstart.Config{
				Session:     env.Session,
				Worker:      a.cfg.Worker,
				Parallelism: a.cfg.Transport.Parallelism,
			}, warmstart.Deps{
				Transport: tr,
				Ledger:    ledger.NewMemoryLedger(),
				Logger:    a.logger,
			})
			if err != nil {
				return err
			}
			if err := svc.Broadcast(cmd.Context(), env, peers); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s to %d peer(s)\n", env.ID, len(peers))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&peers, "to", nil, "receiver URL, e.g. ws://host:7420/ws (repeatable)")
	return cmd
}
