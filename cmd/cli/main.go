// Package main is the entry point for layerctl.
// layerctl is the terminal client for the layerplane API.
package main

import (
	"layerplane/cmd/cli/cmd"
	"os"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
