// Package main is the entry point for the rvcchat voice chat CLI.
//
// Usage:
//
//	rvcchat [flags]            interactive voice chat
//	rvcchat text               interactive chat without audio
//	rvcchat forget             clear the conversation memory
//	rvcchat replay             play the last turn's converted audio again
//	rvcchat settings           print the resolved configuration
package main

import (
	"fmt"
	"os"

	"github.com/ent0n29/rvcchat/cmd/rvcchat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
