package workload

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/jabolina/maelstrom-go/internal/client"
	"github.com/jabolina/maelstrom-go/internal/history"
	"github.com/jabolina/maelstrom-go/internal/rpcregistry"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

// addOutcome classifies an add RPC's result into definite-ok,
// definite-failure (excluded from the acceptable set entirely) or
// indeterminate (widens the acceptable set, spec §4.7).
func addOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	if me, ok := err.(*wire.MaelstromError); ok && me.Definite {
		return "failed"
	}
	return "indeterminate"
}

// pnRange is a closed integer interval [Lo, Hi], the building block of
// the §4.7 TreeRangeSet-equivalent interval model.
type pnRange struct{ Lo, Hi int }

// rangeSet is a coalescing set of integer intervals (spec §9:
// "any interval tree over integers with insert-and-coalesce").
// Implemented as a sorted slice: small enough per-test (bounded by
// indeterminate-add count) that a slice scan beats a balanced tree.
type rangeSet struct {
	mu        sync.Mutex
	intervals []pnRange
}

func newRangeSet(definite int) *rangeSet {
	return &rangeSet{intervals: []pnRange{{definite, definite}}}
}

// shift updates r in place so that it holds every existing interval
// plus every existing interval shifted by d (spec §4.7: "for each
// indeterminate add d, for every current interval [l,u] also insert
// [l+d, u+d]").
func (r *rangeSet) shift(d int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	shifted := make([]pnRange, len(r.intervals))
	for i, iv := range r.intervals {
		shifted[i] = pnRange{iv.Lo + d, iv.Hi + d}
	}
	r.intervals = coalesce(append(r.intervals, shifted...))
}

func coalesce(ivs []pnRange) []pnRange {
	if len(ivs) == 0 {
		return ivs
	}
	sorted := append([]pnRange(nil), ivs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Lo < sorted[j-1].Lo; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	out := []pnRange{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if iv.Lo <= last.Hi+1 {
			if iv.Hi > last.Hi {
				last.Hi = iv.Hi
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

func (r *rangeSet) contains(v int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, iv := range r.intervals {
		if v >= iv.Lo && v <= iv.Hi {
			return true
		}
	}
	return false
}

func (r *rangeSet) snapshot() []pnRange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pnRange(nil), r.intervals...)
}

// pnCounterState accumulates the definite sum of ok adds and the
// acceptable-range set widened by every indeterminate (:info) add.
type pnCounterState struct {
	mu       sync.Mutex
	definite int
	deltas   []int
}

func (p *pnCounterState) recordOK(d int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.definite += d
}

func (p *pnCounterState) recordIndeterminate(d int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deltas = append(p.deltas, d)
}

func (p *pnCounterState) acceptableSet() *rangeSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	rs := newRangeSet(p.definite)
	for _, d := range p.deltas {
		rs.shift(d)
	}
	return rs
}

// NewPNCounter builds the pn-counter workload (spec §4.7, §8 scenario
// 5): adds uniform in [-5,5], final reads checked against the
// acceptable-sum range set.
func NewPNCounter(rngSeed *rand.Rand, nodes []wire.NodeID, opsPerClient int) *Workload {
	rng := newSafeRand(rngSeed)
	state := &pnCounterState{}
	var remaining atomic.Int64
	remaining.Store(int64(opsPerClient))
	gen := GeneratorFunc(func(ctx context.Context) (Op, bool) {
		if remaining.Add(-1) < 0 {
			return Op{}, false
		}
		raw, _ := json.Marshal(rng.Intn(11) - 5)
		return Op{F: "add", Value: raw}, true
	})
	// Limit(..., 1): the final generator is shared by all clients, so
	// it samples eventual state once in total after nemesis recovery
	// (spec §4.6), not forever.
	final := Limit(GeneratorFunc(func(ctx context.Context) (Op, bool) { return Op{F: "read"}, true }), 1)

	adapter := AdapterFunc(func(ctx context.Context, c *client.Client, _ wire.NodeID, op Op) (json.RawMessage, error) {
		dest := nodes[rng.Intn(len(nodes))]
		switch op.F {
		case "add":
			var d int
			json.Unmarshal(op.Value, &d)
			body, _ := json.Marshal(counterAddRequestBody{Type: "add", Delta: d})
			resp, err := c.RPC(ctx, dest, "add", body, rpcTimeout())
			switch addOutcome(err) {
			case "ok":
				state.recordOK(d)
			case "indeterminate":
				state.recordIndeterminate(d)
			}
			return resp, err
		case "read":
			body, _ := json.Marshal(map[string]string{"type": "read"})
			return c.RPC(ctx, dest, "read", body, rpcTimeout())
		}
		return nil, nil
	})

	return &Workload{
		Name:           "pn-counter",
		Generator:      gen,
		FinalGenerator: final,
		Adapter:        adapter,
		Checker:        &pnCounterChecker{state: state},
		RegisterSchemas: func(reg *rpcregistry.Registry) {
			reg.Defrpc("add", counterSchema, counterSchema, "add: apply a signed delta to the pn-counter")
			reg.Defrpc("read", counterSchema, counterSchema, "read: return the pn-counter's current value")
		},
	}
}

type pnCounterChecker struct{ state *pnCounterState }

func (p *pnCounterChecker) Check(entries []history.Entry) CheckResult {
	rs := p.state.acceptableSet()
	for _, e := range entries {
		if e.Type != history.OK || e.F != "read" {
			continue
		}
		var resp counterReadResponseBody
		json.Unmarshal(mustRaw(e.Value), &resp)
		if !rs.contains(resp.Value) {
			return CheckResult{Valid: "false", Details: map[string]interface{}{
				"got": resp.Value, "acceptable": rs.snapshot(),
			}}
		}
	}
	return CheckResult{Valid: "true"}
}
