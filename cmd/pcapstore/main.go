// Package main provides pcapstore, a tool for inspecting and maintaining
// packet-capture datasets.
package main

import (
	"os"
	"strings"

	"github.com/calvinalkan/pcapstore/internal/cli"
)

func main() {
	environ := os.Environ()
	env := make(map[string]string, len(environ))

	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	os.Exit(cli.Run(os.Stdout, os.Stderr, os.Args, env))
}
