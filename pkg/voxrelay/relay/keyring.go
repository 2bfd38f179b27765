package relay

import (
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

// Credential resolution order: config value → environment variable → OS
// keyring (Linux: Secret Service, macOS: Keychain, Windows: Credential
// Manager). The keyring entries are written once via `voxrelay store-secret`
// style tooling or the OS itself; we only read here.
const (
	keyringService = "voxrelay"

	keyringDiscordToken = "discord_token"
	keyringAPIKey       = "api_key"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring, empty if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// ResolveSecrets fills empty credential fields from env vars and the OS
// keyring, in that order. Call after config load, before wiring clients.
func ResolveSecrets(cfg *Config, logger *slog.Logger) {
	if cfg.Discord.Token == "" {
		cfg.Discord.Token = firstNonEmpty(
			os.Getenv("VOXRELAY_DISCORD_TOKEN"),
			os.Getenv("DISCORD_TOKEN"),
			GetKeyring(keyringDiscordToken),
		)
		if cfg.Discord.Token != "" {
			logger.Debug("discord token resolved outside config file")
		}
	}
	if cfg.API.APIKey == "" {
		cfg.API.APIKey = firstNonEmpty(
			os.Getenv("VOXRELAY_API_KEY"),
			os.Getenv("OPENAI_API_KEY"),
			GetKeyring(keyringAPIKey),
		)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
