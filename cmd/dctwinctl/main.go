package main

import (
	"fmt"
	"os"

	"dctwin/internal/cli"
)

var version = "dev"

func main() {
	cli.SetVersion(version)

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dctwinctl: %v\n", err)
		os.Exit(1)
	}
}
