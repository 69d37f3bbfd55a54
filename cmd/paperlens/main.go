// Command paperlens is the entry point for the PaperLens research paper
// analysis service. It provides a CLI interface (via Cobra) and an HTTP
// server exposing document ingestion, semantic search, and synthesis.
package main

import (
	"fmt"
	"os"

	"github.com/paperlens/paperlens-go/cmd/paperlens/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
