package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxrelay/voxrelay/pkg/voxrelay/llm"
	"github.com/voxrelay/voxrelay/pkg/voxrelay/relay"
	"github.com/voxrelay/voxrelay/pkg/voxrelay/store"
)

// newHealthCmd creates `voxrelay health`, a quick dependency probe.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to the store and the LLM backend",
		RunE:  runHealth,
	}
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, configPath, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)
	relay.ResolveSecrets(cfg, logger)

	if configPath != "" {
		fmt.Printf("config:  ok (%s)\n", configPath)
	} else {
		fmt.Println("config:  defaults (no file found)")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	embedder := llm.NewEmbeddingClient(cfg.API)
	st, err := store.Open(cfg.Store, embedder, logger)
	if err != nil {
		fmt.Printf("store:   FAIL (%v)\n", err)
	} else {
		if _, err := st.Recent(ctx, "health-check", 1); err != nil {
			fmt.Printf("store:   FAIL (%v)\n", err)
		} else if counter, ok := st.(interface{ Count(context.Context) int }); ok {
			fmt.Printf("store:   ok (%d messages)\n", counter.Count(ctx))
		} else {
			fmt.Println("store:   ok")
		}
		st.Close()
	}

	if _, err := embedder.Embed(ctx, "health check"); err != nil {
		fmt.Printf("backend: FAIL (%v)\n", err)
	} else {
		fmt.Printf("backend: ok (%s)\n", cfg.API.BaseURL)
	}

	if cfg.Discord.Token == "" {
		fmt.Println("discord: no token configured")
	} else {
		fmt.Println("discord: token present")
	}

	return nil
}
