// Package cli holds the reconciler commands
package cli

import (
	"github.com/spf13/cobra"
)

// DefaultConfigPath is read when --config is not given
const DefaultConfigPath = "./config/reconciler.yml"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Version    string
}

// NewRootCommand creates the root command of the reconciler binary
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Invoice reconciliation service",
		Long: `Pairs the warehouse and trainee checklist submissions of each invoice,
compares the reported values and alerts the operators' chat channel on
divergence or on invoices missing from the ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", DefaultConfigPath, "path to the YAML configuration")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTailCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	cmd.Version = version
	return cmd
}
