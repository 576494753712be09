// Package configcmder provides the config command for managing persistent
// ragchat configuration stored in the .ragchat/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ragchat/pkg/cliui"
	"github.com/papercomputeco/ragchat/pkg/config"
)

const configLongDesc string = `Manage persistent ragchat configuration.

Configuration is stored as config.toml in the .ragchat/ directory and provides
default values for command flags. CLI flags and RAGCHAT_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.endpoint, client.user_id, client.timeout, client.dump_stream,
  events.provider, events.brokers, events.topic,
  log.pretty, log.json

Use subcommands to get, set, or list configuration values:
  ragchat config set <key> <value>    Set a configuration value
  ragchat config get <key>            Get a configuration value
  ragchat config list                 List all configuration values

Examples:
  ragchat config set client.endpoint https://chat.internal/api/v1/chat/stream
  ragchat config set events.provider kafka
  ragchat config get client.timeout
  ragchat config list`

const configShortDesc string = "Manage persistent ragchat configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// completeKeys offers config keys for the first positional argument.
func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func unknownKeyError(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

// printTarget reports which config file a command operates on.
func printTarget(w io.Writer, target string) {
	if target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}
}
