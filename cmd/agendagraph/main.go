// Package main provides the agendagraph command line.
package main

import (
	"fmt"
	"os"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "agendagraph"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
