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

type broadcastRequestBody struct {
	Type    string `json:"type"`
	Message int    `json:"message,omitempty"`
}

type broadcastReadResponseBody struct {
	Type     string `json:"type"`
	Messages []int  `json:"messages"`
}

type topologyRequestBody struct {
	Type     string                `json:"type"`
	Topology map[string][]wire.NodeID `json:"topology"`
}

var broadcastReqSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"type"},
}
var broadcastRespSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"type"},
}

// NewBroadcast builds the broadcast workload (spec §8 scenarios 2-3):
// clients send broadcast(message) to random nodes, and after nemesis
// recovery the accumulated set is read back and checked against the
// union of every successfully broadcast value.
func NewBroadcast(rngSeed *rand.Rand, nodes []wire.NodeID, opsPerClient int) *Workload {
	rng := newSafeRand(rngSeed)
	sent := &broadcastTracker{}
	var remaining atomic.Int64
	remaining.Store(int64(opsPerClient))
	var next atomic.Int64
	gen := GeneratorFunc(func(ctx context.Context) (Op, bool) {
		if remaining.Add(-1) < 0 {
			return Op{}, false
		}
		raw, _ := json.Marshal(next.Add(1))
		return Op{F: "broadcast", Value: raw}, true
	})
	// Limit(..., 1): the final generator is shared by all clients, so it
	// samples eventual state once in total, from one random node, after
	// nemesis recovery (spec §4.6), not forever -- an
	// unbounded "always true" generator would livelock driveClients.
	final := Limit(GeneratorFunc(func(ctx context.Context) (Op, bool) {
		return Op{F: "read"}, true
	}), 1)

	adapter := AdapterFunc(func(ctx context.Context, c *client.Client, _ wire.NodeID, op Op) (json.RawMessage, error) {
		dest := nodes[rng.Intn(len(nodes))]
		switch op.F {
		case "broadcast":
			var v int
			json.Unmarshal(op.Value, &v)
			body, _ := json.Marshal(broadcastRequestBody{Type: "broadcast", Message: v})
			resp, err := c.RPC(ctx, dest, "broadcast", body, rpcTimeout())
			if err == nil {
				sent.add(v)
			}
			return resp, err
		case "read":
			body, _ := json.Marshal(broadcastRequestBody{Type: "read"})
			return c.RPC(ctx, dest, "read", body, rpcTimeout())
		}
		return nil, nil
	})

	return &Workload{
		Name:           "broadcast",
		Generator:      gen,
		FinalGenerator: final,
		Adapter:        adapter,
		Checker:        &broadcastChecker{sent: sent},
		RegisterSchemas: func(reg *rpcregistry.Registry) {
			reg.Defrpc("broadcast", broadcastReqSchema, broadcastRespSchema, "broadcast: gossip a value to every node")
			reg.Defrpc("read", broadcastReqSchema, broadcastRespSchema, "read: return this node's accumulated set")
			reg.Defrpc("topology", broadcastReqSchema, broadcastRespSchema, "topology: install the inter-node gossip graph")
		},
	}
}

// broadcastTracker records which values were successfully broadcast,
// for the checker's expected-union computation.
type broadcastTracker struct {
	mu     sync.Mutex
	values map[int]bool
}

func (t *broadcastTracker) add(v int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.values == nil {
		t.values = map[int]bool{}
	}
	t.values[v] = true
}

func (t *broadcastTracker) snapshot() map[int]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int]bool, len(t.values))
	for k := range t.values {
		out[k] = true
	}
	return out
}

// broadcastChecker verifies every final read's message set contains
// every successfully broadcast value (spec §8 scenario 2) and reports
// how many were missing as lost; extra values in a read are not
// flagged.
type broadcastChecker struct {
	sent *broadcastTracker
}

func (b *broadcastChecker) Check(entries []history.Entry) CheckResult {
	want := b.sent.snapshot()
	lost := 0
	for _, e := range entries {
		if e.Type != history.OK || e.F != "read" {
			continue
		}
		var resp broadcastReadResponseBody
		json.Unmarshal(mustRaw(e.Value), &resp)
		got := map[int]bool{}
		for _, m := range resp.Messages {
			got[m] = true
		}
		for v := range want {
			if !got[v] {
				lost++
			}
		}
	}
	details := map[string]interface{}{"lost": lost}
	if lost > 0 {
		return CheckResult{Valid: "false", Details: details}
	}
	return CheckResult{Valid: "true", Details: details}
}
