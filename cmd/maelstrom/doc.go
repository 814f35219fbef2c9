package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jabolina/maelstrom-go/internal/rpcregistry"
	"github.com/jabolina/maelstrom-go/internal/wire"
	"github.com/jabolina/maelstrom-go/internal/workload"
)

// docCmd is the "maelstrom doc" subcommand (spec §6): emits the
// workload RPC reference that `defrpc` registrations feed (spec §4.3,
// §9 "schemas ... feed the documentation generator"). Every workload
// is built once against a fixed three-node placeholder topology
// purely to walk its RegisterSchemas hook; none of it is run.
func docCmd() *cobra.Command {
	var outDir string
	var format string

	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Emit the workload RPC reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := rpcregistry.New()
			for _, wl := range allDocWorkloads() {
				wl.RegisterSchemas(reg)
			}

			switch format {
			case "markdown", "md", "":
				md := reg.RenderMarkdown()
				if outDir == "" {
					cmd.Print(md)
					return nil
				}
				return writeDocFile(filepath.Join(outDir, "workloads.md"), []byte(md))
			case "yaml", "yml":
				raw, err := reg.RenderYAML()
				if err != nil {
					return newExitError(exitHarness, err)
				}
				if outDir == "" {
					cmd.Print(string(raw))
					return nil
				}
				return writeDocFile(filepath.Join(outDir, "workloads.yaml"), raw)
			default:
				return newExitError(exitHarness, fmt.Errorf("doc: unknown format %q, want markdown or yaml", format))
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&outDir, "out", "", "directory to write the reference into (stdout if empty)")
	flags.StringVar(&format, "format", "markdown", "output format: markdown or yaml")

	return cmd
}

func writeDocFile(path string, contents []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return newExitError(exitHarness, err)
	}
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		return newExitError(exitHarness, err)
	}
	return nil
}

// allDocWorkloads builds every registered workload (spec §2 C6) on a
// stand-in topology, purely to collect their RegisterSchemas side
// effects for `doc`.
func allDocWorkloads() []*workload.Workload {
	nodes := []wire.NodeID{"n1", "n2", "n3"}
	seed := rand.New(rand.NewSource(1))
	return []*workload.Workload{
		workload.NewEcho("please-echo-35", 1),
		workload.NewBroadcast(seed, nodes, 1),
		workload.NewGSet(seed, nodes, 1),
		workload.NewGCounter(seed, nodes, 1),
		workload.NewPNCounter(seed, nodes, 1),
		workload.NewLinKV(seed, nodes, 0, 1),
		workload.NewUniqueIDs(seed, nodes, 1),
		workload.NewKafka(seed, nodes, []string{"k1"}, 1),
		workload.NewTxnListAppend(seed, nodes, 1, 1),
		workload.NewTxnRWRegister(seed, nodes, 1, 1),
	}
}
