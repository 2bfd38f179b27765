package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/voxrelay/voxrelay/pkg/voxrelay/relay"
)

// secretNames maps CLI secret names to keyring entries.
var secretNames = map[string]string{
	"discord-token": "discord_token",
	"api-key":       "api_key",
}

// newSecretCmd creates the `voxrelay secret` command group for managing
// credentials in the OS keyring.
func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage credentials in the OS keyring",
		Long: `Store and remove credentials in the OS keyring (Secret Service on
Linux, Keychain on macOS, Credential Manager on Windows) so they never
appear in config files.

Examples:
  voxrelay secret set discord-token
  voxrelay secret delete api-key`,
	}
	cmd.AddCommand(newSecretSetCmd(), newSecretDeleteCmd())
	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <discord-token|api-key>",
		Short: "Store a credential in the OS keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keyringName(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Enter value for %s: ", args[0])
			value, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("reading secret: %w", err)
			}
			if len(value) == 0 {
				return fmt.Errorf("empty value")
			}

			if err := relay.StoreKeyring(key, string(value)); err != nil {
				return fmt.Errorf("storing secret: %w", err)
			}
			fmt.Printf("%s stored in keyring\n", args[0])
			return nil
		},
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <discord-token|api-key>",
		Short: "Remove a credential from the OS keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keyringName(args[0])
			if err != nil {
				return err
			}
			if err := relay.DeleteKeyring(key); err != nil {
				return fmt.Errorf("deleting secret: %w", err)
			}
			fmt.Printf("%s removed from keyring\n", args[0])
			return nil
		},
	}
}

func keyringName(arg string) (string, error) {
	key, ok := secretNames[strings.ToLower(arg)]
	if !ok {
		return "", fmt.Errorf("unknown secret %q (want discord-token or api-key)", arg)
	}
	return key, nil
}
