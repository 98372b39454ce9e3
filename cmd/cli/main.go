// Package main is the entry point for the docforge CLI.
// The CLI is the developer terminal tool for interacting with the docforge API.
package main

import (
	"os"

	"docforge/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
