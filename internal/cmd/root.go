package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for devicelab
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devicelab",
		Short: "Test runner for a local pool of lab devices",
		Long: `Devicelab executes test manifests against a pool of physical lab
devices in parallel, retrying failures across multiple tries and
recording run results.

It parses manifest files (Markdown or YAML), distributes test items
over the available devices, and aggregates per-test outcomes.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	// Add subcommands
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
