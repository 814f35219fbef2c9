package workload

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/jabolina/maelstrom-go/internal/client"
	"github.com/jabolina/maelstrom-go/internal/journal"
	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/netsim"
	"github.com/jabolina/maelstrom-go/internal/rpcregistry"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

func TestHasCycleDetectsCycle(t *testing.T) {
	adj := map[int]map[int]bool{
		0: {1: true},
		1: {2: true},
		2: {0: true},
	}
	if !hasCycle(adj) {
		t.Fatal("expected cycle to be detected")
	}
}

func TestHasCycleAcyclicGraph(t *testing.T) {
	adj := map[int]map[int]bool{
		0: {1: true},
		1: {2: true},
	}
	if hasCycle(adj) {
		t.Fatal("expected no cycle in a DAG")
	}
}

func TestTxnListAppendCheckerFlagsCycle(t *testing.T) {
	log := &txnLog{}
	// t0 appends 1 to key 0, t1 reads [1] from key 0 and appends 2 to
	// key 1, t0 in turn reads [2] from key 1 -- a write-read cycle.
	log.record(0, []txnMicroOp{{F: "append", Key: 0, Value: 1.0}, {F: "r", Key: 1, Value: []interface{}{2.0}}}, true)
	log.record(1, []txnMicroOp{{F: "r", Key: 0, Value: []interface{}{1.0}}, {F: "append", Key: 1, Value: 2.0}}, true)

	checker := &txnListAppendChecker{log: log}
	result := checker.Check(nil)
	if result.Valid != "false" {
		t.Fatalf("expected cycle to be flagged invalid, got %+v", result)
	}
}

// TestTxnWorkloadAdapterLogsResponseValues drives the real
// newTxnWorkload adapter against a fake node that fills every "r" op's
// Value with a fabricated observed value distinct from the request
// (which always sends Value:nil for reads, see NewTxnListAppend's
// generator). It asserts the log records the response's values, not
// the request's -- the bug fixed here left reads permanently
// unparseable and the checkers permanently vacuous.
func TestTxnWorkloadAdapterLogsResponseValues(t *testing.T) {
	n := netsim.New(logging.NewStderr(), journal.New())
	n.AddNode("n1")
	defer n.RemoveNode("n1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		msg, ok := n.Recv("n1", 2*time.Second)
		if !ok {
			return
		}
		var req struct {
			Type  string       `json:"type"`
			Txn   []txnMicroOp `json:"txn"`
			MsgID int          `json:"msg_id"`
		}
		json.Unmarshal(msg.Body, &req)
		for i := range req.Txn {
			if req.Txn[i].F == "r" {
				req.Txn[i].Value = []interface{}{float64(42)}
			}
		}
		replyBody, _ := json.Marshal(struct {
			Type      string       `json:"type"`
			Txn       []txnMicroOp `json:"txn"`
			InReplyTo int          `json:"in_reply_to"`
		}{Type: "txn_ok", Txn: req.Txn, InReplyTo: req.MsgID})
		n.Send(wire.Message{Src: "n1", Dest: msg.Src, Body: replyBody})
	}()

	reg := rpcregistry.New()
	log := &txnLog{}
	rng := newSafeRand(rand.New(rand.NewSource(1)))
	wl := newTxnWorkload("txn-list-append", rng, []wire.NodeID{"n1"}, GeneratorFunc(func(ctx context.Context) (Op, bool) {
		return Op{}, false
	}), log, &txnListAppendChecker{log: log})
	wl.RegisterSchemas(reg)

	c := client.Open(n, reg)
	ops := []txnMicroOp{{F: "r", Key: 0}}
	raw, _ := json.Marshal(ops)
	resp, err := wl.Adapter.Invoke(context.Background(), c, "n1", Op{F: "txn", Value: raw})
	<-done
	if err != nil {
		t.Fatalf("adapter.Invoke: %v", err)
	}
	if resp == nil {
		t.Fatal("expected a response body")
	}

	records := log.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected exactly one logged record, got %d", len(records))
	}
	if !records[0].ok {
		t.Fatalf("expected the logged record to be ok, got %+v", records[0])
	}
	got := toIntSlice(records[0].ops[0].Value)
	if len(got) != 1 || got[0] != 42 {
		t.Fatalf("expected logged read value [42] (from the response), got %v", records[0].ops[0].Value)
	}
}

func TestTxnRWCheckerFlagsStaleRegisterRead(t *testing.T) {
	log := &txnLog{}
	log.record(0, []txnMicroOp{{F: "w", Key: 0, Value: 5.0}}, true)
	log.record(1, []txnMicroOp{{F: "r", Key: 0, Value: 9.0}}, true)

	checker := &txnRWChecker{log: log}
	result := checker.Check(nil)
	if result.Valid != "false" {
		t.Fatalf("expected stale register read to be flagged invalid, got %+v", result)
	}
}
