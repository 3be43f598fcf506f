// ABOUTME: Entry point for the triplog CLI
// ABOUTME: Executes the root Cobra command and maps failures to exit codes

package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
