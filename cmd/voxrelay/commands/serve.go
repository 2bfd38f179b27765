package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voxrelay/voxrelay/pkg/voxrelay/channels/discord"
	"github.com/voxrelay/voxrelay/pkg/voxrelay/llm"
	"github.com/voxrelay/voxrelay/pkg/voxrelay/relay"
	"github.com/voxrelay/voxrelay/pkg/voxrelay/store"
)

// newServeCmd creates the `voxrelay serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the relay daemon",
		Long: `Start VoxRelay as a daemon: connect to Discord, record every visible
message into the store, and reply when addressed.

Examples:
  voxrelay serve
  voxrelay serve --config ./voxrelay.yaml --verbose`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, configPath, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)
	if configPath != "" {
		logger.Info("config loaded", "path", configPath)
	} else {
		logger.Warn("no config file found, using defaults")
	}

	relay.ResolveSecrets(cfg, logger)
	if cfg.Discord.Token == "" {
		return fmt.Errorf("discord token is required (config, VOXRELAY_DISCORD_TOKEN, or keyring)")
	}

	// The reply budget drives outbound chunking in the channel.
	if cfg.Reply.MaxLength > 0 {
		cfg.Discord.MaxMessageLength = cfg.Reply.MaxLength
	}

	embedder := llm.NewEmbeddingClient(cfg.API)
	st, err := store.Open(cfg.Store, embedder, logger)
	if err != nil {
		return fmt.Errorf("opening message store: %w", err)
	}
	defer st.Close()

	ch := discord.New(cfg.Discord, logger)
	completer := llm.NewCompletionClient(cfg.API)
	r := relay.New(cfg, ch, st, completer, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting voxrelay", "run_id", r.RunID(), "store", cfg.Store.Driver)
	return r.Run(ctx)
}
