package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/runner"
)

// testCmd is the "maelstrom test" subcommand (spec §6): runs one test
// and exits with the code in exit.go's mapping.
func testCmd() *cobra.Command {
	opts := runner.DefaultOptions()
	var specPath string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run a single test against a node binary",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = newExitError(exitHarness, fmt.Errorf("harness panic: %v", p))
				}
			}()

			if specPath != "" {
				loaded, loadErr := runner.LoadOptions(specPath)
				if loadErr != nil {
					return newExitError(exitHarness, loadErr)
				}
				opts = loaded
			}
			if len(args) > 0 {
				opts.Bin = args[0]
				opts.Args = args[1:]
			}

			r, err := runner.New(opts, logging.NewStderr())
			if err != nil {
				return newExitError(exitHarness, err)
			}

			report, err := r.Run(cmd.Context())
			if err != nil {
				return newExitError(exitHarness, err)
			}

			cmd.Printf("result: valid? %s (artifacts in %s)\n", report.Result.Valid, report.Dir)
			if verr := verdictError(report.Result.Valid); verr != nil {
				return newExitError(exitCodeForVerdict(report.Result.Valid), verr)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&specPath, "spec", "", "path to a yaml test-spec file (defaults merge under its settings)")
	flags.StringVar(&opts.TestName, "test-name", opts.TestName, "name for this test, used in the store path")
	flags.StringVar(&opts.WorkloadName, "workload", opts.WorkloadName, "workload to run (echo, broadcast, g-set, g-counter, pn-counter, lin-kv, unique-ids, kafka, txn-list-append, txn-rw-register)")
	flags.IntVar(&opts.NodeCount, "node-count", opts.NodeCount, "number of node processes to start")
	flags.IntVar(&opts.ClientCount, "client-count", opts.ClientCount, "number of concurrent client goroutines")
	flags.IntVar(&opts.OpsPerClient, "ops-per-client", opts.OpsPerClient, "operations each client issues")
	flags.DurationVar(&opts.TimeLimit, "time-limit", opts.TimeLimit, "how long to drive the workload")
	flags.Float64Var(&opts.Rate, "rate", opts.Rate, "operations per second per client (0 disables throttling)")
	flags.DurationVar(&opts.NemesisInterval, "nemesis-interval", opts.NemesisInterval, "partition/heal interval (0 disables nemesis)")
	flags.Float64Var(&opts.LatencyMeanMs, "latency-mean-ms", opts.LatencyMeanMs, "mean simulated network latency in milliseconds")
	flags.Float64Var(&opts.LossProbability, "loss-probability", opts.LossProbability, "probability a message is dropped in flight")
	flags.Int64Var(&opts.Seed, "seed", opts.Seed, "random seed for network and workload generators")
	flags.StringVar(&opts.StoreDir, "store-dir", opts.StoreDir, "directory artifacts are written under")
	flags.BoolVar(&opts.StrictNetCheck, "strict-net", opts.StrictNetCheck, "fail if any send never saw a matching receive (only valid with nemesis disabled)")

	return cmd
}
