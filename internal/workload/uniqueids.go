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

type generateResponseBody struct {
	Type string      `json:"type"`
	ID   interface{} `json:"id"`
}

var generateSchema = map[string]interface{}{"type": "object", "required": []interface{}{"type"}}

// NewUniqueIDs builds the unique-ids workload (spec §8 scenario 6):
// repeatedly request generate, checked for pairwise distinctness
// across every response.
func NewUniqueIDs(rngSeed *rand.Rand, nodes []wire.NodeID, opsPerClient int) *Workload {
	rng := newSafeRand(rngSeed)
	var remaining atomic.Int64
	remaining.Store(int64(opsPerClient))
	gen := GeneratorFunc(func(ctx context.Context) (Op, bool) {
		if remaining.Add(-1) < 0 {
			return Op{}, false
		}
		return Op{F: "generate"}, true
	})

	adapter := AdapterFunc(func(ctx context.Context, c *client.Client, _ wire.NodeID, op Op) (json.RawMessage, error) {
		dest := nodes[rng.Intn(len(nodes))]
		body, _ := json.Marshal(map[string]string{"type": "generate"})
		return c.RPC(ctx, dest, "generate", body, rpcTimeout())
	})

	return &Workload{
		Name:      "unique-ids",
		Generator: gen,
		Adapter:   adapter,
		Checker:   &uniqueIDsChecker{},
		RegisterSchemas: func(reg *rpcregistry.Registry) {
			reg.Defrpc("generate", generateSchema, generateSchema, "generate: mint a globally unique id")
		},
	}
}

type uniqueIDsChecker struct{}

func (uniqueIDsChecker) Check(entries []history.Entry) CheckResult {
	seen := map[string]bool{}
	for _, e := range entries {
		if e.Type != history.OK || e.F != "generate" {
			continue
		}
		var resp generateResponseBody
		json.Unmarshal(mustRaw(e.Value), &resp)
		key, _ := json.Marshal(resp.ID)
		if seen[string(key)] {
			return CheckResult{Valid: "false", Details: map[string]interface{}{"duplicate": resp.ID}}
		}
		seen[string(key)] = true
	}
	return CheckResult{Valid: "true"}
}
