package supervisor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/jabolina/maelstrom-go/internal/journal"
	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/netsim"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

// TestMain supports the re-exec trick for spawning "itself" as a fake
// user-node binary: when GO_WANT_HELPER_PROCESS is set, the test
// binary behaves as a Maelstrom node instead of running the test
// suite (mirrors the teacher's test/testing.go pattern of providing a
// harness helper package alongside the code it exercises).
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		runHelperNode()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// runHelperNode echoes init_ok to init and, for every other message,
// replies with a generic "ok" body, one JSON line per message.
func runHelperNode() {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var msg wire.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		h, err := msg.Header()
		if err != nil {
			continue
		}
		var reply wire.Message
		switch h.Type {
		case "init":
			reply = wire.Message{Src: msg.Dest, Dest: msg.Src, Body: wire.MustBody(initOK{Type: "init_ok", InReplyTo: h.MsgID})}
		default:
			reply = wire.Message{Src: msg.Dest, Dest: msg.Src, Body: wire.MustBody(map[string]interface{}{"type": "ok", "in_reply_to": h.MsgID})}
		}
		line, _ := json.Marshal(reply)
		fmt.Fprintln(os.Stdout, string(line))
	}
}

func helperCommand() (string, []string) {
	os.Setenv("GO_WANT_HELPER_PROCESS", "1")
	return os.Args[0], []string{"-test.run=TestMain"}
}

func TestStartNodeCompletesHandshake(t *testing.T) {
	bin, args := helperCommand()
	n := netsim.New(logging.NewStderr(), journal.New())
	n.AddNode(ControlNodeID)
	defer n.RemoveNode(ControlNodeID)

	logFile := &discardWriteCloser{}
	node, err := StartNode(n, logging.NewStderr(), "n1", bin, args, []wire.NodeID{"n1"}, logFile)
	if err != nil {
		t.Fatalf("StartNode: %v", err)
	}
	defer node.Stop()

	if node.ID() != "n1" {
		t.Fatalf("expected node id n1, got %s", node.ID())
	}
}

type discardWriteCloser struct{}

func (discardWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardWriteCloser) Close() error                { return nil }

var _ io.WriteCloser = discardWriteCloser{}
