package store

import (
	"fmt"
	"log/slog"
	"strings"
)

// Config selects and configures the message store backend.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file (default "voxrelay.db").
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string when Driver is "postgres".
	DSN string `yaml:"dsn"`

	// RemoteURL, when set, makes the relay talk to a remote store service
	// over HTTP instead of opening a local database.
	RemoteURL string `yaml:"remote_url"`

	// Listen is the store service bind address (default ":8090").
	Listen string `yaml:"listen"`
}

// DefaultConfig returns the SQLite defaults.
func DefaultConfig() Config {
	return Config{
		Driver: "sqlite",
		Path:   "voxrelay.db",
		Listen: ":8090",
	}
}

// Open creates the configured backend. RemoteURL wins over local drivers so a
// single config can describe both the relay and the store process.
func Open(cfg Config, embedder Embedder, logger *slog.Logger) (Store, error) {
	if cfg.RemoteURL != "" {
		return NewHTTPClient(cfg.RemoteURL, logger), nil
	}

	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite", "sqlite3":
		path := cfg.Path
		if path == "" {
			path = "voxrelay.db"
		}
		return OpenSQLite(path, embedder, logger)
	case "postgres", "postgresql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store: postgres driver requires a dsn")
		}
		return OpenPostgres(cfg.DSN, embedder, logger)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
