package cmd

import (
	"context"
	"errors"

	"golang-reconciliation-engine/internal/api"
	"golang-reconciliation-engine/pkg/logger"

	"github.com/spf13/cobra"
)

func serveCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reconciliation API over HTTP",
		Long: `Serve exposes suggestions, confirmation, batch reconciliation, anomaly
detection and alert review as a JSON API. The server stops gracefully on
SIGINT or SIGTERM, waiting up to server.shutdown_timeout for requests in
flight.`,
		Example: `  reconciler serve
  reconciler serve --port 9090 --db books.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := s.cfg.Server
			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetInt("port")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			st, err := s.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			svc, err := s.reconciliationService(st)
			if err != nil {
				return err
			}
			d, err := s.detector(st)
			if err != nil {
				return err
			}

			server := api.NewServer(cfg, svc, d)
			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logger.GetGlobalLogger().WithComponent("cli").Info("Server stopped")
			return <-errCh
		},
	}
	cmd.Flags().Int("port", 0, "listen port (default: server.port)")
	return cmd
}
