// Package main provides the entry point for the steve CLI.
package main

import (
	"os"

	"github.com/stevekb/steve/cmd/steve/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
