// Package main is the mcpserve command: an MCP server that exposes a
// directory tree over stdio.
// file: cmd/mcpserve/main.go
package main

import (
	"fmt"
	"os"
)

// Version information, set during build via ldflags.
var (
	Version    = "0.1.0-dev"
	commitHash = "unknown"
	buildDate  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mcpserve: %v\n", err)
		os.Exit(1)
	}
}
