// animflow evaluates animated layer properties from snapshot documents.
//
// Usage:
//
//	animflow [--format json|text] [-v] <command> [flags]
//
// Commands:
//
//	compile   Compile node graphs into evaluation order
//	validate  Validate a snapshot without evaluating it
//	eval      Evaluate a composition at one frame
//	bake      Evaluate a frame range and store the values
//	trace     Query baked runs
//	replay    Re-bake a stored run and verify determinism
//	test      Run scenario harness
//	watch     Re-evaluate a composition whenever its snapshot changes
//	convert   Rewrite a snapshot as YAML or JSON
package main

import (
	"fmt"
	"os"

	"github.com/roach88/animflow/internal/cli"
)

// version is set with ldflags at build time.
var version = "dev"

func main() {
	rootCmd := cli.NewRootCommand()
	rootCmd.Version = version
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
