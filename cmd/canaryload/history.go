package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/equinor/canaryload/internal/output"
)

// runHistory prints past runs recorded with --history-file.
func runHistory(args []string, stdout, stderr io.Writer) int {
	var (
		file string
		last int
	)
	fs := pflag.NewFlagSet("canaryload history", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&file, "file", "f", "canaryload-history.jsonl", "History file written by --history-file")
	fs.IntVarP(&last, "last", "n", 0, "Show only the most recent N runs (0 shows all)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitConfigError
	}
	if last < 0 {
		fmt.Fprintln(stderr, "Error: --last must be >= 0")
		return exitConfigError
	}

	reports, err := output.ReadHistory(file)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}
	if len(reports) == 0 {
		fmt.Fprintf(stdout, "No runs recorded in %s\n", file)
		return exitOK
	}
	if last > 0 && len(reports) > last {
		reports = reports[len(reports)-last:]
	}
	if err := output.PrintHistory(stdout, reports); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}
	return exitOK
}
