// Package relay implements the core of VoxRelay: the per-channel message
// dispatcher, the relevance filter, the context assembler, and the
// orchestrator that ties the messaging channel, the message store, and the
// language-model backend together.
package relay

import (
	"github.com/voxrelay/voxrelay/pkg/voxrelay/channels/discord"
	"github.com/voxrelay/voxrelay/pkg/voxrelay/llm"
	"github.com/voxrelay/voxrelay/pkg/voxrelay/store"
)

// Config holds all relay configuration.
type Config struct {
	// Name is the assistant's display name; messages containing it
	// (case-insensitively) are treated as addressed to the assistant.
	Name string `yaml:"name"`

	// Discord configures the Discord channel.
	Discord discord.Config `yaml:"discord"`

	// API configures the language-model backend.
	API llm.Config `yaml:"api"`

	// Store configures the message store backend or remote service.
	Store store.Config `yaml:"store"`

	// Peers lists the display names of other assistants whose messages
	// always pass the relevance filter.
	Peers []string `yaml:"peers"`

	// ParticipationRate is the probability (0..1) that the assistant joins
	// a conversation unprompted (default 0.1).
	ParticipationRate float64 `yaml:"participation_rate"`

	// Context configures the prompt window sizes.
	Context ContextConfig `yaml:"context"`

	// Reply configures outbound reply shaping.
	Reply ReplyConfig `yaml:"reply"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`

	// Heartbeat configures the periodic liveness log.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// ContextConfig bounds the two retrieval windows of the assembled prompt.
type ContextConfig struct {
	// HistoryLimit is the number of most-recent messages included (default 10).
	HistoryLimit int `yaml:"history_limit"`

	// RelevantLimit is the number of similarity-retrieved messages included
	// (default 5).
	RelevantLimit int `yaml:"relevant_limit"`
}

// ReplyConfig shapes outbound replies.
type ReplyConfig struct {
	// MaxLength is the per-message character budget before chunking
	// (default 1900, under Discord's 2000 hard limit).
	MaxLength int `yaml:"max_length"`

	// Apology is sent when a completion fails (default built-in notice).
	Apology string `yaml:"apology"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error" (default "info").
	Level string `yaml:"level"`

	// Format is "json" or "text" (default "json").
	Format string `yaml:"format"`
}

// HeartbeatConfig configures the periodic liveness log.
type HeartbeatConfig struct {
	// Enabled turns the heartbeat on (default true).
	Enabled bool `yaml:"enabled"`

	// Interval is a cron "@every" duration string (default "5m").
	Interval string `yaml:"interval"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Name:              "voxrelay",
		API:               llm.DefaultConfig(),
		Store:             store.DefaultConfig(),
		ParticipationRate: 0.1,
		Context: ContextConfig{
			HistoryLimit:  10,
			RelevantLimit: 5,
		},
		Reply: ReplyConfig{
			MaxLength: 1900,
			Apology:   "I apologize, but I'm having trouble formulating a complete response at the moment. Please try again later.",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  true,
			Interval: "5m",
		},
	}
}
