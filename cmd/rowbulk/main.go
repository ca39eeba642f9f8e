// Package main provides the entry point for the rowbulk CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/rowbulk/cmd/rowbulk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
