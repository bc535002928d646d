package main

import (
	"os"

	"auralis.click/internal/cli"
)

// Allows `go install auralis.click@latest` as well as the cmd/auralis path.
func main() {
	c := cli.NewCLI()
	exitCode := c.Run(os.Args, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}
