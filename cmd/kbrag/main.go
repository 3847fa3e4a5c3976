// Command kbrag is the entry point for the knowledge-base RAG service.
// It provides a CLI (via Cobra) for ingesting PDFs and asking questions,
// and an HTTP server exposing the same operations.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/kbrag-go/cmd/kbrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
