package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/pistat/pistat/archive"
	"github.com/ZanzyTHEbar/pistat/pistat/config"
	"github.com/ZanzyTHEbar/pistat/pistat/ledger"
	"github.com/ZanzyTHEbar/pistat/pistat/metrics"
	"github.com/ZanzyTHEbar/pistat/pistat/solver/memsolver"
	"github.com/ZanzyTHEbar/pistat/pistat/transfer"
	"github.com/ZanzyTHEbar/pistat/pistat/transport"
	"github.com/ZanzyTHEbar/pistat/pistat/warmstart"
)

func openLedger(a *app) (ledger.Ledger, error) {
	cfg := a.cfg.Ledger
	if cfg.InMemory {
		lc := ledger.InMemoryBadgerConfig(a.cfg.Worker)
		lc.Logger = a.logger
		return ledger.OpenBadger(lc)
	}
	lc := ledger.DefaultBadgerConfig(cfg.Path, a.cfg.Worker)
	lc.SyncWrites = cfg.SyncWrites
	lc.Logger = a.logger
	return ledger.OpenBadger(lc)
}

func openArchive(a *app) (archive.Archive, error) {
	if a.cfg.Archive.DSN == "" {
		return archive.NewMemoryArchive(), nil
	}
	return archive.OpenSQL(a.cfg.Archive.DSN, a.logger)
}

func advertiseURL(t config.TransportConfig) string {
	if t.AdvertiseURL != "" {
		return t.AdvertiseURL
	}
	return "ws://" + t.ListenAddr + "/ws"
}

// newServeCmd creates the serve command
func newServeCmd(a *app) *cobra.Command {
	var (
		seed       bool
		checkpoint string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive records over websocket and accumulate them",
		Long: `Receive records over websocket and accumulate them.

Envelopes arriving on /ws are checked against the applied-transfer ledger,
accumulated into an in-memory solver and archived. With --seed the solver
first absorbs the newest archived record of the session. On shutdown the
accumulated state can be written to --checkpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			l, err := openLedger(a)
			if err != nil {
				return err
			}
			defer l.Close()

			arch, err := openArchive(a)
			if err != nil {
				return err
			}
			defer arch.Close()

			tr := transport.NewWebsocketTransport(transport.WebsocketConfig{
				Addr:            advertiseURL(a.cfg.Transport),
				QueueSize:       a.cfg.Transport.QueueSize,
				SendTimeout:     a.cfg.Transport.SendTimeout(),
				MaxMessageBytes: a.cfg.Transport.MaxMessageBytes,
				Logger:          a.logger,
			})
			defer tr.Close()

			m := metrics.NewTransferMetrics(a.cfg.Metrics.Namespace)
			svc, err := warmstart.NewService(warmstart.Config{
				Session:     a.cfg.Session,
				Worker:      a.cfg.Worker,
				Parallelism: a.cfg.Transport.Parallelism,
			}, warmstart.Deps{
				Transport: tr,
				Ledger:    l,
				Archive:   arch,
				Metrics:   m,
				Logger:    a.logger,
			})
			if err != nil {
				return err
			}

			s := memsolver.New()
			if seed {
				env, _, err := svc.Seed(ctx, s, a.cfg.Session)
				switch {
				case errors.Is(err, archive.ErrNotFound):
					a.logger.Info().Msg("nothing archived for session, starting cold")
				case err != nil:
					return fmt.Errorf("seed: %w", err)
				default:
					a.logger.Info().Str("transfer_id", env.ID.String()).Msg("seeded from archive")
				}
			}

			mux := http.NewServeMux()
			mux.Handle("/ws", tr)
			if a.cfg.Metrics.Enabled {
				mux.Handle(a.cfg.Metrics.Path, m.Handler())
			}
			srv := &http.Server{Addr: a.cfg.Transport.ListenAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()
			a.logger.Info().Str("listen", a.cfg.Transport.ListenAddr).Str("advertise", tr.Addr()).Msg("receiver started")

			serveErr := svc.Serve(ctx, s)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn().Err(err).Msg("http shutdown")
			}
			if err := <-errCh; err != nil {
				return err
			}

			if checkpoint != "" {
				if err := transfer.PersistRecord(checkpoint, s.Snapshot()); err != nil {
					return fmt.Errorf("checkpoint: %w", err)
				}
				a.logger.Info().Str("file", checkpoint).Msg("checkpoint written")
			}
			if errors.Is(serveErr, transport.ErrClosed) {
				return nil
			}
			return serveErr
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "absorb the newest archived record of the session before serving")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "write the accumulated record here on shutdown")
	return cmd
}
