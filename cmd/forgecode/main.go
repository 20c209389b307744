// Package main provides the entry point for the ForgeCode CLI.
package main

import (
	"fmt"
	"os"

	"github.com/forgecode-ai/forgecode/cmd/forgecode/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
