// Package main is the entry point for the roofquote operator CLI.
package main

import (
	"os"

	"github.com/JBODE-mhhs/sfl-roof-estimator/cmd/roofquote/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
