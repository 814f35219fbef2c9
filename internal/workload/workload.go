// Package workload implements the client-adapter + generator +
// checker triples for the ten required workloads (spec §2 C6, §4.6):
// echo, broadcast, g-set, g-counter, pn-counter, lin-kv, unique-ids,
// kafka, txn-list-append, txn-rw-register. It generalizes the
// teacher's per-RPC request/response struct pairs in protocol.go
// (GMCastRequest/ComputeRequest/GatherRequest, each an RPCHeader plus
// a typed payload) into one struct pair per workload operation,
// registered with rpcregistry instead of dispatched by the GM-Cast
// protocol engine.
package workload

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jabolina/maelstrom-go/internal/client"
	"github.com/jabolina/maelstrom-go/internal/history"
	"github.com/jabolina/maelstrom-go/internal/rpcregistry"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

// safeRand wraps *rand.Rand with a mutex: a workload's generator and
// adapter are driven by multiple concurrent client goroutines (spec
// §5 "N client threads driven by the workload generator"), and
// math/rand.Rand is not safe for concurrent use on its own.
type safeRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSafeRand(rng *rand.Rand) *safeRand { return &safeRand{rng: rng} }

func (s *safeRand) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// Op is the abstract operation a generator emits and an adapter
// executes (spec §4.6: "{:f :read, :value nil}").
type Op struct {
	F     string          `json:"f"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Generator is a lazy stream of ops (spec §4.6). Next returns false
// once the stream is exhausted or the context is done.
type Generator interface {
	Next(ctx context.Context) (Op, bool)
}

// GeneratorFunc adapts a plain function to a Generator.
type GeneratorFunc func(ctx context.Context) (Op, bool)

func (f GeneratorFunc) Next(ctx context.Context) (Op, bool) { return f(ctx) }

// Limit wraps g, returning false after n ops have been produced.
func Limit(g Generator, n int) Generator {
	var count atomic.Int64
	return GeneratorFunc(func(ctx context.Context) (Op, bool) {
		if count.Add(1) > int64(n) {
			return Op{}, false
		}
		op, ok := g.Next(ctx)
		if !ok {
			return Op{}, false
		}
		return op, true
	})
}

// Stagger wraps g so that consecutive Next calls are spaced at least
// interval apart, approximating the generator's rate (spec §1 "rate").
func Stagger(g Generator, interval time.Duration) Generator {
	var last time.Time
	return GeneratorFunc(func(ctx context.Context) (Op, bool) {
		if !last.IsZero() {
			if sleep := interval - time.Since(last); sleep > 0 {
				select {
				case <-time.After(sleep):
				case <-ctx.Done():
					return Op{}, false
				}
			}
		}
		last = time.Now()
		return g.Next(ctx)
	})
}

// Mix round-robins ops across multiple generators, stopping once all
// are exhausted. Useful for composing e.g. read/write/cas into a
// single op stream (spec §8 scenario 4: "mixes read/write/cas").
func Mix(gens ...Generator) Generator {
	i := 0
	return GeneratorFunc(func(ctx context.Context) (Op, bool) {
		n := len(gens)
		for tries := 0; tries < n; tries++ {
			g := gens[i%n]
			i++
			if op, ok := g.Next(ctx); ok {
				return op, true
			}
		}
		return Op{}, false
	})
}

// WeightedMix picks a generator at random each call, weighted by
// weights (same length as gens); a generator returning false is
// treated as permanently exhausted and removed from future draws.
func WeightedMix(rng *rand.Rand, gens []Generator, weights []int) Generator {
	alive := append([]Generator(nil), gens...)
	w := append([]int(nil), weights...)
	return GeneratorFunc(func(ctx context.Context) (Op, bool) {
		for len(alive) > 0 {
			total := 0
			for _, x := range w {
				total += x
			}
			if total <= 0 {
				return Op{}, false
			}
			pick := rng.Intn(total)
			idx := 0
			for acc := 0; idx < len(w); idx++ {
				acc += w[idx]
				if pick < acc {
					break
				}
			}
			op, ok := alive[idx].Next(ctx)
			if ok {
				return op, true
			}
			alive = append(alive[:idx], alive[idx+1:]...)
			w = append(w[:idx], w[idx+1:]...)
		}
		return Op{}, false
	})
}

// Adapter translates an Op into an RPC against dest and the RPC's
// response back into the Op's outcome value (spec §4.6 "client
// adapter").
type Adapter interface {
	Invoke(ctx context.Context, c *client.Client, dest wire.NodeID, op Op) (json.RawMessage, error)
}

// AdapterFunc adapts a plain function to an Adapter.
type AdapterFunc func(ctx context.Context, c *client.Client, dest wire.NodeID, op Op) (json.RawMessage, error)

func (f AdapterFunc) Invoke(ctx context.Context, c *client.Client, dest wire.NodeID, op Op) (json.RawMessage, error) {
	return f(ctx, c, dest, op)
}

// CheckResult is one checker's verdict (spec §4.6: ":valid?" plus
// supporting detail).
type CheckResult struct {
	Valid   string // "true", "false" or "unknown"
	Details map[string]interface{}
}

// Checker analyzes a completed history into a CheckResult (spec §4.6,
// §6 "Checker").
type Checker interface {
	Check(entries []history.Entry) CheckResult
}

// noIdempotentFs is the IdempotentFs used when a Workload sets none:
// the set of :f values whose retries are safe to treat as a definite
// failure on error (spec §4.3 "with_errors", §7 stratum 2) is empty.
var noIdempotentFs = map[string]bool{}

// Workload bundles the four pieces named in spec §4.6: a Generator,
// an optional FinalGenerator (run after nemesis recovery), an
// Adapter, a Checker and the RPC schemas it requires.
type Workload struct {
	Name             string
	Generator        Generator
	FinalGenerator   Generator // nil if the workload has none
	Adapter          Adapter
	Checker          Checker
	IdempotentFs     map[string]bool
	RegisterSchemas  func(reg *rpcregistry.Registry)
}

// Run drives one client through Generator against dest, recording one
// history.Entry per op under the given process id (spec §3 "History
// entry"). It does not touch FinalGenerator: that phase runs
// separately, after the harness heals the nemesis and before it tears
// down nodes (spec §4.6 "run after nemesis recovery"), via RunFinal.
func (w *Workload) Run(ctx context.Context, c *client.Client, dest wire.NodeID, process int) []history.Entry {
	return w.drive(ctx, w.Generator, c, dest, process)
}

// RunFinal drives FinalGenerator (if any) against dest, sampling
// eventual state once the nemesis has healed (spec §4.6). It is a
// no-op if the workload has no FinalGenerator. Every shipped
// FinalGenerator is count-bounded (workload.Limit), so this always
// terminates even though ctx here is typically context.Background
// rather than the time-limited run context.
func (w *Workload) RunFinal(ctx context.Context, c *client.Client, dest wire.NodeID, process int) []history.Entry {
	if w.FinalGenerator == nil {
		return nil
	}
	return w.drive(ctx, w.FinalGenerator, c, dest, process)
}

func (w *Workload) drive(ctx context.Context, g Generator, c *client.Client, dest wire.NodeID, process int) []history.Entry {
	if g == nil {
		return nil
	}
	idempotent := w.IdempotentFs
	if idempotent == nil {
		idempotent = noIdempotentFs
	}
	var entries []history.Entry
	for {
		select {
		case <-ctx.Done():
			return entries
		default:
		}
		op, ok := g.Next(ctx)
		if !ok {
			return entries
		}
		entries = append(entries, history.Invocation(process, op.F, op.Value))
		resp, err := w.Adapter.Invoke(ctx, c, dest, op)
		entries = append(entries, history.WithErrors(process, op.F, resp, err, idempotent))
	}
}

func rpcTimeout() time.Duration { return 5 * time.Second }
