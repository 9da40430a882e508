// Command energyassistant-edge is the entry point for the energy
// assistant platform's edge orchestrator: a site-local HTTP server that
// classifies user messages and dispatches them to the device-control or
// energy-efficiency pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/energy-assistant/cmd/edge/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
