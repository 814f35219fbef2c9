package workload

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jabolina/maelstrom-go/internal/client"
	"github.com/jabolina/maelstrom-go/internal/history"
	"github.com/jabolina/maelstrom-go/internal/journal"
	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/netsim"
	"github.com/jabolina/maelstrom-go/internal/rpcregistry"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

const recvTestTimeout = time.Second

// runEchoServer answers every echo request on node with an echo_ok
// carrying the same payload, until ctx is done.
func runEchoServer(ctx context.Context, n *netsim.Net, node wire.NodeID) {
	for {
		msg, ok := n.Recv(node, recvTestTimeout)
		if !ok {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		var req echoRequestBody
		var hdr wire.BodyHeader
		json.Unmarshal(msg.Body, &req)
		json.Unmarshal(msg.Body, &hdr)
		resp := wire.MustBody(echoResponseBody{Type: "echo_ok", Echo: req.Echo})
		resp, _ = wire.WithInReplyTo(resp, hdr.MsgID)
		n.Send(wire.Message{Src: node, Dest: msg.Src, Body: resp})
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func TestEchoWorkloadRoundTrips(t *testing.T) {
	n := netsim.New(logging.NewStderr(), journal.New())
	n.AddNode("n1")
	defer n.RemoveNode("n1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runEchoServer(ctx, n, "n1")

	reg := rpcregistry.New()
	wl := NewEcho("hello", 3)
	wl.RegisterSchemas(reg)

	c := client.Open(n, reg)
	entries := wl.Run(context.Background(), c, "n1", 0)

	result := wl.Checker.Check(entries)
	if result.Valid != "true" {
		t.Fatalf("expected valid echo history, got %+v", result)
	}

	okCount := 0
	for _, e := range entries {
		if e.Type == history.OK {
			okCount++
		}
	}
	if okCount != 3 {
		t.Fatalf("expected 3 ok entries, got %d", okCount)
	}
}

func TestEchoCheckerDetectsMismatch(t *testing.T) {
	entries := []history.Entry{
		history.Invocation(0, "echo", json.RawMessage(`"hi"`)),
		{Process: 0, Type: history.OK, F: "echo", Value: json.RawMessage(`{"type":"echo_ok","echo":"bye"}`)},
	}
	result := (echoChecker{}).Check(entries)
	if result.Valid != "false" {
		t.Fatalf("expected mismatch to be flagged invalid, got %+v", result)
	}
}
