package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/runner"
)

// testAllCmd is the "maelstrom test-all" subcommand (spec §6): runs
// the same node binary through every registered workload in sequence,
// each its own Runner with its own store/<test>/<run-id>/ directory,
// and reports the worst verdict across the suite (spec §6 exit-status
// mapping: 0 only if every run is valid).
func testAllCmd() *cobra.Command {
	opts := runner.DefaultOptions()
	var specPath string

	cmd := &cobra.Command{
		Use:   "test-all",
		Short: "Run every workload against a node binary",
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

			log := logging.NewStderr()
			worst := exitValid
			for _, wl := range allWorkloadNames {
				runOpts := opts
				runOpts.WorkloadName = wl
				runOpts.TestName = fmt.Sprintf("%s-%s", opts.TestName, wl)

				r, err := runner.New(runOpts, log)
				if err != nil {
					return newExitError(exitHarness, fmt.Errorf("workload %s: %w", wl, err))
				}
				report, err := r.Run(cmd.Context())
				if err != nil {
					cmd.PrintErrf("workload %s: harness error: %v\n", wl, err)
					worst = worseExit(worst, exitHarness)
					continue
				}
				cmd.Printf("workload %-16s valid? %-8s (artifacts in %s)\n", wl, report.Result.Valid, report.Dir)
				worst = worseExit(worst, exitCodeForVerdict(report.Result.Valid))
			}

			if worst != exitValid {
				return newExitError(worst, fmt.Errorf("test-all: not every workload was valid"))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&specPath, "spec", "", "path to a yaml test-spec file shared by every workload run")
	flags.StringVar(&opts.TestName, "test-name", opts.TestName, "base name for each run, suffixed with the workload name")
	flags.IntVar(&opts.NodeCount, "node-count", opts.NodeCount, "number of node processes to start")
	flags.IntVar(&opts.ClientCount, "client-count", opts.ClientCount, "number of concurrent client goroutines")
	flags.IntVar(&opts.OpsPerClient, "ops-per-client", opts.OpsPerClient, "operations each client issues")
	flags.DurationVar(&opts.TimeLimit, "time-limit", opts.TimeLimit, "how long to drive each workload")
	flags.Float64Var(&opts.Rate, "rate", opts.Rate, "operations per second per client (0 disables throttling)")
	flags.DurationVar(&opts.NemesisInterval, "nemesis-interval", opts.NemesisInterval, "partition/heal interval (0 disables nemesis)")
	flags.Float64Var(&opts.LatencyMeanMs, "latency-mean-ms", opts.LatencyMeanMs, "mean simulated network latency in milliseconds")
	flags.Float64Var(&opts.LossProbability, "loss-probability", opts.LossProbability, "probability a message is dropped in flight")
	flags.Int64Var(&opts.Seed, "seed", opts.Seed, "random seed for network and workload generators")
	flags.StringVar(&opts.StoreDir, "store-dir", opts.StoreDir, "directory artifacts are written under")

	return cmd
}

// allWorkloadNames mirrors internal/runner's buildWorkload switch
// (spec §2 C6: the ten required workloads).
var allWorkloadNames = []string{
	"echo",
	"broadcast",
	"g-set",
	"g-counter",
	"pn-counter",
	"lin-kv",
	"unique-ids",
	"kafka",
	"txn-list-append",
	"txn-rw-register",
}

// worseExit returns whichever of a, b is the more severe exit code
// under the spec §6 ordering (harness failure worst, then invalid,
// then unknown, valid best).
func worseExit(a, b int) int {
	rank := func(code int) int {
		switch code {
		case exitHarness:
			return 3
		case exitInvalid:
			return 2
		case exitUnknown:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
