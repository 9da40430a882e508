// Command energyassistant-cloudrag is the entry point for the energy
// assistant platform's cloud RAG tier: an HTTP server that answers
// energy-efficiency questions over the indexed document corpus, plus an
// ingest command for building the chunk, vector, and lexical indexes.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/energy-assistant/cmd/cloudrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
