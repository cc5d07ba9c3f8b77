// Package configcmder provides the config command for managing persistent
// rapport configuration stored in the .rapport/ directory.
package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/rapport/pkg/config"
)

const configLongDesc string = `Manage persistent rapport configuration.

Configuration is stored as config.toml in the .rapport/ directory and provides
default values for command flags. CLI flags and RAPPORT_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn, storage.redis_addr,
  api.listen, client.api_target,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  completion.provider, completion.model, completion.base_url,
  ledger.workers, ledger.sweep_interval,
  matching.preference_weight, recommend.min_confidence,
  eventstream.provider, eventstream.brokers, eventstream.topic

Run "rapport config list" for the full set.

Examples:
  rapport config set storage.driver postgres
  rapport config set embedding.model nomic-embed-text
  rapport config get completion.provider
  rapport config list`

const configShortDesc string = "Manage persistent rapport configuration"

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

// configDir reads the persistent --config-dir flag when the command tree
// carries one.
func configDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config-dir")
	return dir
}

func keyCompletion(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
