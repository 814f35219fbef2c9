package runner

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/jabolina/maelstrom-go/internal/wire"
	"github.com/jabolina/maelstrom-go/internal/workload"
)

// buildWorkload resolves opts.WorkloadName into a concrete *Workload,
// addressed at nodes (the supervisor-started user processes under
// test; spec §8 "workloads exercise the nodes under test, not the
// harness's own services"). Each of the ten required workloads (spec
// §2 C6) gets its own seeded *rand.Rand derived from opts.Seed so a
// run is reproducible end to end. If opts.Rate is set, the workload's
// main Generator is throttled to approximately that many ops/sec per
// client (spec §1, §8 scenarios: "rate 1/s", "rate 100/s", ...) via
// workload.Stagger; the FinalGenerator, which samples eventual state
// once after nemesis recovery, is never throttled. The Generator is
// shared by every client, so its op budget is OpsPerClient×ClientCount
// and its interval is scaled by ClientCount; clients draw from that
// shared budget, so each issues about OpsPerClient ops, not exactly.
func buildWorkload(opts Options, nodes []wire.NodeID) (*workload.Workload, error) {
	seed := rand.New(rand.NewSource(opts.Seed))
	budget := opts.OpsPerClient * opts.ClientCount
	var wl *workload.Workload
	switch opts.WorkloadName {
	case "echo":
		wl = workload.NewEcho("please-echo-35", budget)
	case "broadcast":
		wl = workload.NewBroadcast(seed, nodes, budget)
	case "g-set":
		wl = workload.NewGSet(seed, nodes, budget)
	case "g-counter":
		wl = workload.NewGCounter(seed, nodes, budget)
	case "pn-counter":
		wl = workload.NewPNCounter(seed, nodes, budget)
	case "lin-kv":
		wl = workload.NewLinKV(seed, nodes, 0, budget)
	case "unique-ids":
		wl = workload.NewUniqueIDs(seed, nodes, budget)
	case "kafka":
		keys := opts.Keys
		if len(keys) == 0 {
			keys = []string{"k1", "k2", "k3"}
		}
		wl = workload.NewKafka(seed, nodes, keys, budget)
	case "txn-list-append":
		numKeys := opts.NumKeys
		if numKeys <= 0 {
			numKeys = 5
		}
		wl = workload.NewTxnListAppend(seed, nodes, numKeys, budget)
	case "txn-rw-register":
		numKeys := opts.NumKeys
		if numKeys <= 0 {
			numKeys = 5
		}
		wl = workload.NewTxnRWRegister(seed, nodes, numKeys, budget)
	default:
		return nil, fmt.Errorf("runner: unknown workload %q", opts.WorkloadName)
	}

	if opts.Rate > 0 {
		wl.Generator = workload.Stagger(wl.Generator, time.Duration(float64(time.Second)/(opts.Rate*float64(opts.ClientCount))))
	}
	return wl, nil
}
