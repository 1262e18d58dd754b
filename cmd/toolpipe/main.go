// Command toolpipe runs tools through the execution pipeline from the
// command line or serves the pipeline over HTTP.
package main

import (
	"os"
)

func main() {
	cmd := NewRootCommand(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		if !alreadyReported(err) {
			newPrinter(os.Stdout, os.Stderr).failure("%s", describeError(err))
		}
		os.Exit(exitCode(err))
	}
}
