package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/jabolina/maelstrom-go/internal/checker"
	"github.com/jabolina/maelstrom-go/internal/client"
	"github.com/jabolina/maelstrom-go/internal/history"
	"github.com/jabolina/maelstrom-go/internal/journal"
	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/nemesis"
	"github.com/jabolina/maelstrom-go/internal/netsim"
	"github.com/jabolina/maelstrom-go/internal/rpcregistry"
	"github.com/jabolina/maelstrom-go/internal/services"
	"github.com/jabolina/maelstrom-go/internal/supervisor"
	"github.com/jabolina/maelstrom-go/internal/wire"
	"github.com/jabolina/maelstrom-go/internal/workload"
)

// Report is the composed outcome of one test run (spec §4.7, §6
// exit-code mapping): the overall checker verdict plus the artifact
// directory it was written to.
type Report struct {
	RunID     string
	Dir       string
	Result    checker.Result
	StartedAt time.Time
	Duration  time.Duration
}

// Runner wires C1-C7 into one test execution (spec §2, §6): the
// simulated Net, the process Supervisor, the built-in Services, a
// Nemesis fault scheduler, N clients driving one Workload, and the
// Checkers folding the resulting history into a verdict. It
// generalizes the teacher's Invoker (pkg/mcast/core/instance.go),
// which owns a Transport plus the protocol state machine as one
// start/stop unit, into a harness that owns a whole test's worth of
// concurrent activities instead of one node's.
type Runner struct {
	opts Options
	log  logging.Logger
}

// New builds a Runner from validated opts.
func New(opts Options, log logging.Logger) (*Runner, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewStderr()
	}
	return &Runner{opts: opts, log: log}, nil
}

// Run executes one end-to-end test: starts the network, the user's
// node processes, the built-in services and (optionally) a nemesis
// scheduler; drives opts.ClientCount clients through the selected
// workload for opts.TimeLimit; tears everything down in the order
// spec §5 requires; folds the resulting history through every
// checker; and writes the run's artifacts to store/<test>/<run-id>/.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	started := time.Now()
	runID := uuid.New().String()
	dir := filepath.Join(r.opts.StoreDir, r.opts.TestName, runID)
	r.log.Infof("starting test %q run %s", r.opts.TestName, runID)
	if err := os.MkdirAll(filepath.Join(dir, "log"), 0o755); err != nil {
		return Report{}, fmt.Errorf("runner: creating store dir: %w", err)
	}

	jepsenLog, err := os.Create(filepath.Join(dir, "jepsen.log"))
	if err != nil {
		return Report{}, fmt.Errorf("runner: creating jepsen.log: %w", err)
	}
	defer jepsenLog.Close()
	runLog := logging.New(jepsenLog)

	j := journal.New()
	net := netsim.New(runLog, j,
		netsim.WithLatencyMeanMs(r.opts.LatencyMeanMs),
		netsim.WithLossProbability(r.opts.LossProbability),
		netsim.WithSeed(r.opts.Seed),
	)
	net.AddNode(supervisor.ControlNodeID)

	nodeIDs := make([]wire.NodeID, r.opts.NodeCount)
	for i := range nodeIDs {
		nodeIDs[i] = wire.NodeID(fmt.Sprintf("n%d", i+1))
	}

	nodes, nodeLogs, err := r.startNodes(net, runLog, nodeIDs, dir)
	if err != nil {
		for _, f := range nodeLogs {
			f.Close()
		}
		return Report{}, err
	}
	defer func() {
		for _, f := range nodeLogs {
			f.Close()
		}
	}()

	stopServices := services.StartDefaults(net, runLog)

	var sched *nemesis.Scheduler
	if r.opts.NemesisInterval > 0 {
		sched = nemesis.NewScheduler(net, runLog, nemesis.NewPartition(r.opts.Seed), r.opts.NemesisInterval)
		sched.Start()
	}

	reg := rpcregistry.New()
	wl, err := buildWorkload(r.opts, nodeIDs)
	if err != nil {
		r.teardown(sched, nodes, stopServices)
		return Report{}, err
	}
	wl.RegisterSchemas(reg)

	runCtx, cancel := context.WithTimeout(ctx, r.opts.TimeLimit)
	exceptions := checker.NewExceptions()
	entries := r.driveClients(runCtx, net, reg, wl, nodeIDs, exceptions)
	cancel()

	// Nemesis heals (spec §5 shutdown order) before the final
	// generator samples eventual state, and before nodes/services stop
	// -- the nodes under test must still be reachable to answer the
	// final reads (spec §4.6 "run after nemesis recovery").
	r.healNemesis(sched)
	entries = append(entries, r.driveFinal(ctx, net, reg, wl, nodeIDs, exceptions)...)

	r.stopAll(nodes, stopServices)

	perf := checker.NewPerf()
	perf.RecordHistory(entries)

	result := checker.Compose(
		checker.FromWorkload(wl.Checker.Check(entries)),
		checker.Stats(entries),
		checker.Net(j, r.opts.StrictNetCheck),
		exceptions.Check(),
		perf.Check(),
		checker.Timeline(filepath.Join(dir, "timeline.html")),
	)

	if err := writeArtifacts(dir, entries, result); err != nil {
		return Report{}, err
	}
	r.log.Infof("test %q run %s finished: valid? %s", r.opts.TestName, runID, result.Valid)

	return Report{
		RunID:     runID,
		Dir:       dir,
		Result:    result,
		StartedAt: started,
		Duration:  time.Since(started),
	}, nil
}

// startNodes spawns one supervisor.Node per id, opening a per-node log
// file under dir/log (spec §6 "log/<node>.log"). On the first failure
// it stops whatever was already started and returns a multierror
// naming the node that failed; nodes after it are not started, per
// spec §5 "init failures abort the whole run".
func (r *Runner) startNodes(net *netsim.Net, log logging.Logger, ids []wire.NodeID, dir string) ([]*supervisor.Node, []*os.File, error) {
	nodes := make([]*supervisor.Node, 0, len(ids))
	files := make([]*os.File, 0, len(ids))
	var errs error
	for _, id := range ids {
		f, err := os.Create(filepath.Join(dir, "log", string(id)+".log"))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("opening log for %s: %w", id, err))
			break
		}
		files = append(files, f)
		n, err := supervisor.StartNode(net, log, id, r.opts.Bin, r.opts.Args, ids, f)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("starting node %s: %w", id, err))
			break
		}
		nodes = append(nodes, n)
	}
	if errs != nil {
		for _, n := range nodes {
			n.Stop()
		}
		return nil, files, errs
	}
	return nodes, files, nil
}

// driveClients runs opts.ClientCount goroutines, each opening its own
// client.Client and running the workload's main Generator against one
// of nodes round-robin, until runCtx is done (spec §5 "N client
// threads"). Entries from every client are merged under a lock: the
// harness itself, not the workload, owns ordering of the merged
// history. Any panic escaping a client goroutine is recovered, logged
// to stderr and recorded into exceptions (spec §7 stratum 3 "no silent
// swallowing") instead of crashing the run.
func (r *Runner) driveClients(runCtx context.Context, net *netsim.Net, reg *rpcregistry.Registry, wl *workload.Workload, nodeIDs []wire.NodeID, exceptions *checker.Exceptions) []history.Entry {
	return r.runClients(runCtx, net, reg, wl, nodeIDs, exceptions, (*workload.Workload).Run)
}

// driveFinal runs opts.ClientCount goroutines through the workload's
// FinalGenerator (spec §4.6 "run after nemesis recovery to sample
// eventual state"), a no-op per client for workloads with none. It is
// a separate pass from driveClients so the harness can call it after
// nemesis has healed but before nodes and services stop.
func (r *Runner) driveFinal(ctx context.Context, net *netsim.Net, reg *rpcregistry.Registry, wl *workload.Workload, nodeIDs []wire.NodeID, exceptions *checker.Exceptions) []history.Entry {
	if wl.FinalGenerator == nil {
		return nil
	}
	return r.runClients(ctx, net, reg, wl, nodeIDs, exceptions, (*workload.Workload).RunFinal)
}

// runClients is the shared fan-out behind driveClients/driveFinal.
func (r *Runner) runClients(ctx context.Context, net *netsim.Net, reg *rpcregistry.Registry, wl *workload.Workload, nodeIDs []wire.NodeID, exceptions *checker.Exceptions, run func(*workload.Workload, context.Context, *client.Client, wire.NodeID, int) []history.Entry) []history.Entry {
	var mu sync.Mutex
	var entries []history.Entry
	var g errgroup.Group
	for i := 0; i < r.opts.ClientCount; i++ {
		process := i
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					r.log.Errorf("client %d panicked: %v", process, p)
					exceptions.Record(fmt.Sprintf("client-%d", process), p)
				}
			}()
			c := client.Open(net, reg)
			dest := nodeIDs[process%len(nodeIDs)]
			got := run(wl, ctx, c, dest, process)
			mu.Lock()
			entries = append(entries, got...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return entries
}

// teardown stops the run's activities in the order spec §5 requires
// when a run aborts before driveClients ever starts (e.g. buildWorkload
// failing): nemesis heals first, then built-in services, then every
// user process gets its termination signal.
func (r *Runner) teardown(sched *nemesis.Scheduler, nodes []*supervisor.Node, stopServices func()) {
	r.healNemesis(sched)
	r.stopAll(nodes, stopServices)
}

// healNemesis stops the nemesis scheduler, which heals any active
// partition as part of shutdown (spec §5 "nemesis heals the network"),
// before anything else tears down.
func (r *Runner) healNemesis(sched *nemesis.Scheduler) {
	if sched != nil {
		sched.Stop()
	}
}

// stopAll stops the built-in services, then every user process
// (killGrace then force-kill, inside supervisor.Node.Stop), per spec
// §5's shutdown order -- called after nemesis has healed and any
// FinalGenerator sampling has completed.
func (r *Runner) stopAll(nodes []*supervisor.Node, stopServices func()) {
	stopServices()
	var g errgroup.Group
	for _, n := range nodes {
		n := n
		g.Go(func() error {
			n.Stop()
			return nil
		})
	}
	_ = g.Wait()
}
