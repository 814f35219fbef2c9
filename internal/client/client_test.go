package client

import (
	"context"
	"testing"
	"time"

	"github.com/jabolina/maelstrom-go/internal/journal"
	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/netsim"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

func newTestNet() *netsim.Net {
	return netsim.New(logging.NewStderr(), journal.New())
}

// echoNode answers every {"type":"echo","echo":...} with an echo_ok
// carrying the fixed value "hi" and in_reply_to, mimicking a trivial user
// node directly against Net (standing in for the Supervisor bridge).
func echoNode(t *testing.T, n *netsim.Net, id wire.NodeID, stop <-chan struct{}) {
	n.AddNode(id)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			msg, ok := n.Recv(id, 50*time.Millisecond)
			if !ok {
				continue
			}
			h, err := msg.Header()
			if err != nil {
				continue
			}
			body := []byte(`{"type":"echo_ok","echo":"hi","in_reply_to":` + itoa(h.MsgID) + `}`)
			n.Send(wire.Message{Src: id, Dest: msg.Src, Body: body})
		}
	}()
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

func TestRPCRoundTrip(t *testing.T) {
	n := newTestNet()
	stop := make(chan struct{})
	defer close(stop)
	echoNode(t, n, "n1", stop)

	c := Open(n, nil)
	reply, err := c.RPC(context.Background(), "n1", "echo", []byte(`{"type":"echo","echo":"hi"}`), time.Second)
	if err != nil {
		t.Fatalf("rpc: %v", err)
	}
	if string(reply) == "" {
		t.Fatal("expected a reply body")
	}
}

func TestRPCTimeoutWhenNoReply(t *testing.T) {
	n := newTestNet()
	n.AddNode("n1") // registered, but nothing ever replies

	c := Open(n, nil)
	_, err := c.RPC(context.Background(), "n1", "echo", []byte(`{"type":"echo","echo":"hi"}`), 30*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	me, ok := err.(*wire.MaelstromError)
	if !ok || me.Code != wire.CodeTimeout {
		t.Fatalf("expected a timeout MaelstromError, got %v", err)
	}
}

func TestRPCRejectsConcurrentRequest(t *testing.T) {
	n := newTestNet()
	n.AddNode("n1")
	c := Open(n, nil)

	c.mu.Lock()
	c.waitingFor = 1
	c.mu.Unlock()

	_, err := c.RPC(context.Background(), "n1", "echo", []byte(`{"type":"echo","echo":"hi"}`), time.Second)
	if err != ErrInUse {
		t.Fatalf("expected ErrInUse, got %v", err)
	}
}
