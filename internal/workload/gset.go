package workload

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync/atomic"

	"github.com/jabolina/maelstrom-go/internal/client"
	"github.com/jabolina/maelstrom-go/internal/history"
	"github.com/jabolina/maelstrom-go/internal/rpcregistry"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

type gsetAddRequestBody struct {
	Type    string `json:"type"`
	Element int    `json:"element"`
}

type gsetReadResponseBody struct {
	Type  string `json:"type"`
	Value []int  `json:"value"`
}

var gsetSchema = map[string]interface{}{"type": "object", "required": []interface{}{"type"}}

// NewGSet builds the g-set workload (spec §4.6): add distinct
// elements, then final-read and check set-equality against everything
// successfully added.
func NewGSet(rngSeed *rand.Rand, nodes []wire.NodeID, opsPerClient int) *Workload {
	rng := newSafeRand(rngSeed)
	added := &broadcastTracker{}
	var remaining atomic.Int64
	remaining.Store(int64(opsPerClient))
	var next atomic.Int64
	gen := GeneratorFunc(func(ctx context.Context) (Op, bool) {
		if remaining.Add(-1) < 0 {
			return Op{}, false
		}
		raw, _ := json.Marshal(next.Add(1))
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
			var v int
			json.Unmarshal(op.Value, &v)
			body, _ := json.Marshal(gsetAddRequestBody{Type: "add", Element: v})
			resp, err := c.RPC(ctx, dest, "add", body, rpcTimeout())
			if err == nil {
				added.add(v)
			}
			return resp, err
		case "read":
			body, _ := json.Marshal(map[string]string{"type": "read"})
			return c.RPC(ctx, dest, "read", body, rpcTimeout())
		}
		return nil, nil
	})

	return &Workload{
		Name:           "g-set",
		Generator:      gen,
		FinalGenerator: final,
		Adapter:        adapter,
		Checker:        &gsetChecker{added: added},
		RegisterSchemas: func(reg *rpcregistry.Registry) {
			reg.Defrpc("add", gsetSchema, gsetSchema, "add: insert an element into the grow-only set")
			reg.Defrpc("read", gsetSchema, gsetSchema, "read: return the set's current elements")
		},
	}
}

type gsetChecker struct{ added *broadcastTracker }

func (g *gsetChecker) Check(entries []history.Entry) CheckResult {
	want := g.added.snapshot()
	for _, e := range entries {
		if e.Type != history.OK || e.F != "read" {
			continue
		}
		var resp gsetReadResponseBody
		json.Unmarshal(mustRaw(e.Value), &resp)
		got := map[int]bool{}
		for _, v := range resp.Value {
			got[v] = true
		}
		for v := range want {
			if !got[v] {
				return CheckResult{Valid: "false", Details: map[string]interface{}{"missing": v}}
			}
		}
	}
	return CheckResult{Valid: "true"}
}
