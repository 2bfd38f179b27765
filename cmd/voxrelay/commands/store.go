package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxrelay/voxrelay/pkg/voxrelay/llm"
	"github.com/voxrelay/voxrelay/pkg/voxrelay/relay"
	"github.com/voxrelay/voxrelay/pkg/voxrelay/store"
)

// newStoreCmd creates the `voxrelay store` command group.
func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Message store operations",
	}
	cmd.AddCommand(newStoreServeCmd())
	return cmd
}

// newStoreServeCmd creates `voxrelay store serve`, running the message store
// as a standalone HTTP service so multiple relays can share one history.
func newStoreServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the message store as an HTTP service",
		Long: `Run the message store as a standalone HTTP service. Relays point at it
with store.remote_url; Prometheus metrics are exposed on /metrics.

Examples:
  voxrelay store serve
  voxrelay store serve --listen :8090`,
		RunE: runStoreServe,
	}
	cmd.Flags().String("listen", "", "bind address (overrides config)")
	return cmd
}

func runStoreServe(cmd *cobra.Command, _ []string) error {
	cfg, configPath, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)
	if configPath != "" {
		logger.Info("config loaded", "path", configPath)
	}

	relay.ResolveSecrets(cfg, logger)

	// The service always opens a local backend; a remote_url here would
	// just proxy to another service.
	storeCfg := cfg.Store
	storeCfg.RemoteURL = ""
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		storeCfg.Listen = listen
	}
	if storeCfg.Listen == "" {
		storeCfg.Listen = ":8090"
	}

	embedder := llm.NewEmbeddingClient(cfg.API)
	st, err := store.Open(storeCfg, embedder, logger)
	if err != nil {
		return fmt.Errorf("opening message store: %w", err)
	}
	defer st.Close()

	svc := store.NewService(st, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(storeCfg.Listen) }()

	logger.Info("store service listening", "addr", storeCfg.Listen, "driver", storeCfg.Driver)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return svc.Stop(shutdownCtx)
}
