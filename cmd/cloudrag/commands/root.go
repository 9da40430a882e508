// Package commands defines all Cobra CLI commands for the cloud RAG binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/energy-assistant/internal/audit"
	"github.com/54b3r/energy-assistant/internal/config"
	"github.com/54b3r/energy-assistant/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "energyassistant-cloudrag",
		Short: "Cloud retrieval-augmented generation service for the energy assistant platform",
		Long: `The cloud RAG binary serves the energy assistant platform's knowledge
tier: it indexes a corpus of energy-efficiency documents and answers
questions over it with strictly validated JSON.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.energyassistant/config.yaml).
See 'energyassistant-cloudrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.energyassistant/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
