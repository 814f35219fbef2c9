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

type counterAddRequestBody struct {
	Type  string `json:"type"`
	Delta int    `json:"delta"`
}

type counterReadResponseBody struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

var counterSchema = map[string]interface{}{"type": "object", "required": []interface{}{"type"}}

type counterTotals struct {
	mu  sync.Mutex
	sum int
}

func (c *counterTotals) add(d int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sum += d
}

func (c *counterTotals) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sum
}

// NewGCounter builds the g-counter workload: non-negative adds
// summed across the cluster, checked against the definite total of
// successful adds on final read.
func NewGCounter(rngSeed *rand.Rand, nodes []wire.NodeID, opsPerClient int) *Workload {
	rng := newSafeRand(rngSeed)
	totals := &counterTotals{}
	var remaining atomic.Int64
	remaining.Store(int64(opsPerClient))
	gen := GeneratorFunc(func(ctx context.Context) (Op, bool) {
		if remaining.Add(-1) < 0 {
			return Op{}, false
		}
		raw, _ := json.Marshal(rng.Intn(5) + 1)
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
			if err == nil {
				totals.add(d)
			}
			return resp, err
		case "read":
			body, _ := json.Marshal(map[string]string{"type": "read"})
			return c.RPC(ctx, dest, "read", body, rpcTimeout())
		}
		return nil, nil
	})

	return &Workload{
		Name:           "g-counter",
		Generator:      gen,
		FinalGenerator: final,
		Adapter:        adapter,
		Checker:        &gcounterChecker{totals: totals},
		RegisterSchemas: func(reg *rpcregistry.Registry) {
			reg.Defrpc("add", counterSchema, counterSchema, "add: increment the grow-only counter by a non-negative delta")
			reg.Defrpc("read", counterSchema, counterSchema, "read: return the counter's current value")
		},
	}
}

type gcounterChecker struct{ totals *counterTotals }

func (g *gcounterChecker) Check(entries []history.Entry) CheckResult {
	want := g.totals.get()
	for _, e := range entries {
		if e.Type != history.OK || e.F != "read" {
			continue
		}
		var resp counterReadResponseBody
		json.Unmarshal(mustRaw(e.Value), &resp)
		if resp.Value != want {
			return CheckResult{Valid: "false", Details: map[string]interface{}{"want": want, "got": resp.Value}}
		}
	}
	return CheckResult{Valid: "true"}
}
