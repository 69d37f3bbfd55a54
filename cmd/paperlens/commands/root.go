// Package commands defines all Cobra CLI commands for the paperlens binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/paperlens/paperlens-go/internal/audit"
	"github.com/paperlens/paperlens-go/internal/config"
	"github.com/paperlens/paperlens-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "paperlens",
		Short: "PaperLens — semantic search and analysis over research papers",
		Long: `PaperLens is a local-first document analysis service for research papers.

It ingests papers into a vector index, answers questions with citation-grounded
generation, attributes generated sentences back to source passages, finds
related papers by shared topics, and synthesizes findings across papers.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.paperlens/config.yaml).
See 'paperlens --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.paperlens/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewQueryCmd(),
		NewVersionCmd(),
	)

	return root
}
