package netsim

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jabolina/maelstrom-go/internal/journal"
	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

func newTestNet(opts ...Option) *Net {
	return New(logging.NewStderr(), journal.New(), opts...)
}

func TestSendToUnregisteredNodeFails(t *testing.T) {
	n := newTestNet()
	n.AddNode("n1")
	_, err := n.Send(wire.Message{Src: "n1", Dest: "n2", Body: []byte(`{"type":"x"}`)})
	if err != ErrNodeNotFound {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestSendThenRecvDelivers(t *testing.T) {
	n := newTestNet()
	n.AddNode("n1")
	n.AddNode("n2")

	_, err := n.Send(wire.Message{Src: "n1", Dest: "n2", Body: []byte(`{"type":"ping"}`)})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	msg, ok := n.Recv("n2", time.Second)
	if !ok {
		t.Fatal("expected a message, got none")
	}
	if msg.Src != "n1" || msg.Dest != "n2" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestRecvTimesOutWithEmptyMailbox(t *testing.T) {
	n := newTestNet()
	n.AddNode("n1")
	start := time.Now()
	_, ok := n.Recv("n1", 10*time.Millisecond)
	if ok {
		t.Fatal("expected timeout, got a message")
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Fatal("recv blocked far longer than its timeout")
	}
}

func TestRecvZeroTimeoutReturnsPromptly(t *testing.T) {
	n := newTestNet()
	n.AddNode("n1")
	start := time.Now()
	_, ok := n.Recv("n1", 0)
	if ok {
		t.Fatal("expected no message with zero timeout on empty mailbox")
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("recv with zero timeout should return promptly")
	}
}

func TestPartitionDropsThenHealRestores(t *testing.T) {
	n := newTestNet()
	n.AddNode("n1")
	n.AddNode("n2")

	n.Drop("n1", "n2")
	if _, err := n.Send(wire.Message{Src: "n1", Dest: "n2", Body: []byte(`{"type":"x"}`)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, ok := n.Recv("n2", 50*time.Millisecond); ok {
		t.Fatal("expected partitioned message to be dropped")
	}

	n.Heal()
	if _, err := n.Send(wire.Message{Src: "n1", Dest: "n2", Body: []byte(`{"type":"y"}`)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg, ok := n.Recv("n2", time.Second)
	if !ok {
		t.Fatal("expected message to be delivered after heal")
	}
	if string(msg.Body) != `{"type":"y"}` {
		t.Fatalf("unexpected body %s", msg.Body)
	}
}

func TestDeadlineOrderNotSendOrder(t *testing.T) {
	n := newTestNet(WithLatencyMeanMs(0))
	n.AddNode("n1")
	n.AddNode("n2")

	// Push directly bypassing random delay sampling by sending twice
	// and relying on deadline==now for both (latency mean 0); instead
	// verify via direct mailbox manipulation that deadline order wins
	// over arrival order.
	box := n.mailboxes["n2"]
	now := time.Now().UnixNano()
	late := &envelope{deadline: now + int64(time.Second), message: wire.Message{ID: 1, Src: "n1", Dest: "n2", Body: []byte(`{"type":"late"}`)}}
	early := &envelope{deadline: now, message: wire.Message{ID: 2, Src: "n1", Dest: "n2", Body: []byte(`{"type":"early"}`)}}
	box.push(late)
	box.push(early)

	msg, ok := n.Recv("n2", time.Second)
	if !ok {
		t.Fatal("expected a message")
	}
	if string(msg.Body) != `{"type":"early"}` {
		t.Fatalf("expected the earlier-deadline envelope first, got %s", msg.Body)
	}
}

func TestNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)
	n := newTestNet()
	n.AddNode("n1")
	n.AddNode("n2")
	n.RemoveNode("n1")
	n.RemoveNode("n2")
}
