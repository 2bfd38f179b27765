// Package commands implements the VoxRelay CLI commands using cobra.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxrelay/voxrelay/pkg/voxrelay/relay"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "voxrelay",
		Short: "VoxRelay - conversational relay assistant for group chats",
		Long: `VoxRelay is a conversational assistant that lives in group chats,
records everything it sees into an embedding-backed message store, and
replies through an OpenAI-compatible language-model backend when addressed.

Examples:
  voxrelay serve
  voxrelay serve --config ./voxrelay.yaml
  voxrelay store serve --listen :8090
  voxrelay health`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newStoreCmd(),
		newHealthCmd(),
		newSecretCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// resolveConfig loads config from --config, the default search path, or
// defaults when no file exists.
func resolveConfig(cmd *cobra.Command) (*relay.Config, string, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = relay.FindConfigFile()
	}
	if path == "" {
		return relay.DefaultConfig(), "", nil
	}

	cfg, err := relay.LoadConfigFromFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, path, nil
}

// newLogger builds the process logger from config and the --verbose flag.
func newLogger(cmd *cobra.Command, cfg *relay.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
