// Package main is the entry point for the bindctl binary.
package main

import (
	"os"

	"markbind/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
