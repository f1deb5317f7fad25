// Package main provides the entry point for the loom agent runtime CLI.
package main

import (
	"fmt"
	"os"

	"github.com/loomwork/loom/cmd/loom/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
