// Package cmd provides the CLI commands for the steve retrieval service.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/stevekb/steve/pkg/version"
)

var configPath string

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steve",
		Short: "Hybrid retrieval and indexing service",
		Long: `Steve indexes document collections for hybrid retrieval:
semantic similarity over embeddings blended with BM25 keyword search,
served over a local HTTP API.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("steve version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (YAML)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
