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

type kafkaSendRequestBody struct {
	Type string `json:"type"`
	Key  string `json:"key"`
	Msg  int    `json:"msg"`
}

type kafkaSendResponseBody struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
}

type kafkaPollRequestBody struct {
	Type    string         `json:"type"`
	Offsets map[string]int `json:"offsets"`
}

type kafkaPollResponseBody struct {
	Type string             `json:"type"`
	Msgs map[string][][2]int `json:"msgs"`
}

type kafkaCommitRequestBody struct {
	Type    string         `json:"type"`
	Offsets map[string]int `json:"offsets"`
}

type kafkaListCommittedRequestBody struct {
	Type string   `json:"type"`
	Keys []string `json:"keys"`
}

type kafkaListCommittedResponseBody struct {
	Type    string         `json:"type"`
	Offsets map[string]int `json:"offsets"`
}

var kafkaSchema = map[string]interface{}{"type": "object", "required": []interface{}{"type"}}

// kafkaLog tracks, per key, every (offset, value) the harness observed
// being sent successfully and every (offset, value) pair a poll
// response returned, for the offset-monotonicity / lost-write / skip
// analysis (spec §4.6 "kafka offset analysis").
type kafkaLog struct {
	mu     sync.Mutex
	sent   map[string][][2]int // key -> [(offset, value), ...] in send order
	polled map[string][][2]int // key -> [(offset, value), ...] observed via poll
}

func (k *kafkaLog) recordSend(key string, offset, value int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.sent == nil {
		k.sent = map[string][][2]int{}
	}
	k.sent[key] = append(k.sent[key], [2]int{offset, value})
}

func (k *kafkaLog) recordPoll(key string, offset, value int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.polled == nil {
		k.polled = map[string][][2]int{}
	}
	k.polled[key] = append(k.polled[key], [2]int{offset, value})
}

func (k *kafkaLog) snapshot() (sent, polled map[string][][2]int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	sent = make(map[string][][2]int, len(k.sent))
	for key, entries := range k.sent {
		sent[key] = append([][2]int(nil), entries...)
	}
	polled = make(map[string][][2]int, len(k.polled))
	for key, entries := range k.polled {
		polled[key] = append([][2]int(nil), entries...)
	}
	return sent, polled
}

// NewKafka builds the kafka (offset log) workload: clients send
// (key,msg) pairs, poll, and commit/list committed offsets against a
// handful of keys.
func NewKafka(rngSeed *rand.Rand, nodes []wire.NodeID, keys []string, opsPerClient int) *Workload {
	rng := newSafeRand(rngSeed)
	kLog := &kafkaLog{}
	var remaining atomic.Int64
	remaining.Store(int64(opsPerClient))
	gen := GeneratorFunc(func(ctx context.Context) (Op, bool) {
		if remaining.Add(-1) < 0 {
			return Op{}, false
		}
		key := keys[rng.Intn(len(keys))]
		roll := rng.Intn(4)
		var f string
		switch roll {
		case 0:
			f = "send"
		case 1:
			f = "poll"
		case 2:
			f = "commit_offsets"
		default:
			f = "list_committed_offsets"
		}
		raw, _ := json.Marshal(key)
		return Op{F: f, Value: raw}, true
	})

	adapter := AdapterFunc(func(ctx context.Context, c *client.Client, _ wire.NodeID, op Op) (json.RawMessage, error) {
		dest := nodes[rng.Intn(len(nodes))]
		var key string
		json.Unmarshal(op.Value, &key)
		switch op.F {
		case "send":
			msg := rng.Intn(1000)
			body, _ := json.Marshal(kafkaSendRequestBody{Type: "send", Key: key, Msg: msg})
			resp, err := c.RPC(ctx, dest, "send", body, rpcTimeout())
			if err == nil {
				var r kafkaSendResponseBody
				json.Unmarshal(resp, &r)
				kLog.recordSend(key, r.Offset, msg)
			}
			return resp, err
		case "poll":
			body, _ := json.Marshal(kafkaPollRequestBody{Type: "poll", Offsets: map[string]int{key: 0}})
			resp, err := c.RPC(ctx, dest, "poll", body, rpcTimeout())
			if err == nil {
				var r kafkaPollResponseBody
				json.Unmarshal(resp, &r)
				for _, pair := range r.Msgs[key] {
					kLog.recordPoll(key, pair[0], pair[1])
				}
			}
			return resp, err
		case "commit_offsets":
			body, _ := json.Marshal(kafkaCommitRequestBody{Type: "commit_offsets", Offsets: map[string]int{key: rng.Intn(100)}})
			return c.RPC(ctx, dest, "commit_offsets", body, rpcTimeout())
		case "list_committed_offsets":
			body, _ := json.Marshal(kafkaListCommittedRequestBody{Type: "list_committed_offsets", Keys: []string{key}})
			return c.RPC(ctx, dest, "list_committed_offsets", body, rpcTimeout())
		}
		return nil, nil
	})

	return &Workload{
		Name:      "kafka",
		Generator: gen,
		Adapter:   adapter,
		Checker:   &kafkaChecker{log: kLog},
		RegisterSchemas: func(reg *rpcregistry.Registry) {
			reg.Defrpc("send", kafkaSchema, kafkaSchema, "send: append (key,msg) to the log, returning its offset")
			reg.Defrpc("poll", kafkaSchema, kafkaSchema, "poll: read entries for a set of keys from a set of offsets")
			reg.Defrpc("commit_offsets", kafkaSchema, kafkaSchema, "commit_offsets: record consumed-through offsets")
			reg.Defrpc("list_committed_offsets", kafkaSchema, kafkaSchema, "list_committed_offsets: read back committed offsets")
		},
	}
}

// kafkaChecker performs the offset monotonicity/lost-write/skip
// analysis spec §4.6 asks for: per key, assigned send offsets must be
// collision-free and contiguous (no gap = no skipped write), and
// every (offset, value) pair a poll ever returned must match what was
// actually sent at that offset (a mismatch or an unknown offset is a
// lost or phantom write).
type kafkaChecker struct{ log *kafkaLog }

func (k *kafkaChecker) Check(entries []history.Entry) CheckResult {
	sent, polled := k.log.snapshot()

	for key, sends := range sent {
		seenOffsets := map[int]bool{}
		min, max := 0, -1
		for i, pair := range sends {
			offset := pair[0]
			if seenOffsets[offset] {
				return CheckResult{Valid: "false", Details: map[string]interface{}{
					"error": "duplicate offset assigned", "key": key, "offset": offset,
				}}
			}
			seenOffsets[offset] = true
			if i == 0 || offset < min {
				min = offset
			}
			if offset > max {
				max = offset
			}
		}
		for o := min; o <= max; o++ {
			if !seenOffsets[o] {
				return CheckResult{Valid: "false", Details: map[string]interface{}{
					"error": "offset gap: a write was skipped", "key": key, "offset": o,
				}}
			}
		}
	}

	for key, polls := range polled {
		byOffset := map[int]int{}
		for _, pair := range sent[key] {
			byOffset[pair[0]] = pair[1]
		}
		for _, pair := range polls {
			offset, value := pair[0], pair[1]
			want, ok := byOffset[offset]
			if !ok {
				return CheckResult{Valid: "false", Details: map[string]interface{}{
					"error": "poll returned an offset this harness never sent (phantom/lost write)", "key": key, "offset": offset,
				}}
			}
			if want != value {
				return CheckResult{Valid: "false", Details: map[string]interface{}{
					"error": "poll returned a value that does not match what was sent at that offset (lost write)",
					"key": key, "offset": offset, "want": want, "got": value,
				}}
			}
		}
	}
	return CheckResult{Valid: "true"}
}
