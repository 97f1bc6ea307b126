// Package main is the entry point for the mietwatch CLI.
package main

import (
	"os"

	"github.com/mietwatch/mietwatch/cmd/mietwatch/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
