// Package commands defines all Cobra CLI commands for the edge binary.
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
		Use:   "energyassistant-edge",
		Short: "Edge orchestrator for the energy assistant platform",
		Long: `The edge binary runs at each site: it classifies incoming chat messages,
dispatches them to the device-control or energy-efficiency pipeline, and
persists per-user conversation history and feedback locally.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.energyassistant/config.yaml).
See 'energyassistant-edge --help' for available commands.`,
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
		NewVersionCmd(),
	)

	return root
}
