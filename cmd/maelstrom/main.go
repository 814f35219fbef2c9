// Command maelstrom is the test-runner CLI (spec §6): it drives one or
// many test runs against a node binary under test and reports a pass/
// fail verdict, mirroring the teacher's cobra-based command layout
// (cmd/ployz in the retrieval pack) but delegating all real work to
// internal/runner.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "maelstrom",
		Short:   "A workbench for testing distributed systems",
		Version: "0.1.0",
	}
	cmd.AddCommand(testCmd())
	cmd.AddCommand(testAllCmd())
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(docCmd())
	return cmd
}
