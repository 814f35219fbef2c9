package workload

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/jabolina/maelstrom-go/internal/client"
	"github.com/jabolina/maelstrom-go/internal/history"
	"github.com/jabolina/maelstrom-go/internal/rpcregistry"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

// echoRequestBody is the wire shape of an echo request (spec §8
// scenario 1).
type echoRequestBody struct {
	Type string `json:"type"`
	Echo string `json:"echo"`
}

type echoResponseBody struct {
	Type string `json:"type"`
	Echo string `json:"echo"`
}

var echoSchema = map[string]interface{}{
	"type":       "object",
	"properties": map[string]interface{}{"type": map[string]interface{}{"const": "echo"}, "echo": map[string]interface{}{"type": "string"}},
	"required":   []interface{}{"type", "echo"},
}

var echoOKSchema = map[string]interface{}{
	"type":       "object",
	"properties": map[string]interface{}{"type": map[string]interface{}{"const": "echo_ok"}, "echo": map[string]interface{}{"type": "string"}},
	"required":   []interface{}{"type", "echo"},
}

// NewEcho builds the echo workload (spec §8 scenario 1): a single
// generator value bounced off one node.
func NewEcho(value string, count int) *Workload {
	var remaining atomic.Int64
	remaining.Store(int64(count))
	gen := GeneratorFunc(func(ctx context.Context) (Op, bool) {
		if remaining.Add(-1) < 0 {
			return Op{}, false
		}
		raw, _ := json.Marshal(value)
		return Op{F: "echo", Value: raw}, true
	})

	adapter := AdapterFunc(func(ctx context.Context, c *client.Client, dest wire.NodeID, op Op) (json.RawMessage, error) {
		var v string
		json.Unmarshal(op.Value, &v)
		body, _ := json.Marshal(echoRequestBody{Type: "echo", Echo: v})
		return c.RPC(ctx, dest, "echo", body, rpcTimeout())
	})

	return &Workload{
		Name:      "echo",
		Generator: gen,
		Adapter:   adapter,
		Checker:   &echoChecker{},
		RegisterSchemas: func(reg *rpcregistry.Registry) {
			reg.Defrpc("echo", echoSchema, echoOKSchema, "echo: bounce a string off a node")
		},
	}
}

// echoChecker asserts every ok response's echo equals its request's
// echo (spec §8 "Idempotence/round-trip laws: Echo").
type echoChecker struct{}

func (echoChecker) Check(entries []history.Entry) CheckResult {
	pending := map[int]string{}
	for _, e := range entries {
		if e.Type == history.Invoke {
			var v string
			json.Unmarshal(mustRaw(e.Value), &v)
			pending[e.Process] = v
		}
		if e.Type == history.OK {
			var resp echoResponseBody
			json.Unmarshal(mustRaw(e.Value), &resp)
			if want, ok := pending[e.Process]; ok && resp.Echo != want {
				return CheckResult{Valid: "false", Details: map[string]interface{}{
					"error": "echo mismatch", "want": want, "got": resp.Echo,
				}}
			}
		}
	}
	return CheckResult{Valid: "true"}
}

// mustRaw re-marshals an interface{} history value back to
// json.RawMessage for typed decoding, since Entry.Value is stored as
// interface{} for generic YAML/JSON serialization.
func mustRaw(v interface{}) json.RawMessage {
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	b, _ := json.Marshal(v)
	return b
}
