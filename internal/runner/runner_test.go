package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

// TestMain supports re-exec'ing this test binary as a fake echoing
// user node (same trick as internal/supervisor's TestMain), so Run can
// be exercised end to end without a real Maelstrom node binary.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		runEchoHelperNode()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runEchoHelperNode() {
	set := map[int]bool{}
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
			reply = wire.Message{Src: msg.Dest, Dest: msg.Src, Body: wire.MustBody(map[string]interface{}{
				"type": "init_ok", "in_reply_to": h.MsgID,
			})}
		case "echo":
			var req struct {
				Echo string `json:"echo"`
			}
			json.Unmarshal(msg.Body, &req)
			reply = wire.Message{Src: msg.Dest, Dest: msg.Src, Body: wire.MustBody(map[string]interface{}{
				"type": "echo_ok", "echo": req.Echo, "in_reply_to": h.MsgID,
			})}
		case "add":
			var req struct {
				Element int `json:"element"`
			}
			json.Unmarshal(msg.Body, &req)
			set[req.Element] = true
			reply = wire.Message{Src: msg.Dest, Dest: msg.Src, Body: wire.MustBody(map[string]interface{}{
				"type": "add_ok", "in_reply_to": h.MsgID,
			})}
		case "read":
			values := make([]int, 0, len(set))
			for v := range set {
				values = append(values, v)
			}
			reply = wire.Message{Src: msg.Dest, Dest: msg.Src, Body: wire.MustBody(map[string]interface{}{
				"type": "read_ok", "value": values, "in_reply_to": h.MsgID,
			})}
		default:
			reply = wire.Message{Src: msg.Dest, Dest: msg.Src, Body: wire.MustBody(map[string]interface{}{
				"type": "ok", "in_reply_to": h.MsgID,
			})}
		}
		line, _ := json.Marshal(reply)
		fmt.Fprintln(os.Stdout, string(line))
	}
}

func helperCommand() (string, []string) {
	os.Setenv("GO_WANT_HELPER_PROCESS", "1")
	return os.Args[0], []string{"-test.run=TestMain"}
}

func TestRunnerRunEchoWorkloadProducesValidResult(t *testing.T) {
	defer goleak.VerifyNone(t)

	bin, args := helperCommand()
	dir := t.TempDir()

	opts := DefaultOptions()
	opts.TestName = "echo-smoke"
	opts.WorkloadName = "echo"
	opts.Bin = bin
	opts.Args = args
	opts.NodeCount = 2
	opts.ClientCount = 3
	opts.OpsPerClient = 4
	opts.TimeLimit = 3 * time.Second
	opts.StoreDir = dir

	r, err := New(opts, logging.NewStderr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Result.Valid != "true" {
		t.Fatalf("expected a valid result, got %+v", report.Result)
	}

	for _, name := range []string{"jepsen.log", "history.txt", "results.yaml", "timeline.html", "messages.svg"} {
		if _, err := os.Stat(report.Dir + "/" + name); err != nil {
			t.Errorf("expected artifact %s: %v", name, err)
		}
	}
}

// TestRunnerFinalGeneratorTerminates is a regression test for a
// livelock where an unbounded FinalGenerator (returning ok=true
// forever) made driveClients/driveFinal's errgroup.Wait() never
// return, hanging Run itself. g-set is one of the four workloads with
// a FinalGenerator; this drives it end to end and requires Run to
// return well within the test's own generous bound.
func TestRunnerFinalGeneratorTerminates(t *testing.T) {
	defer goleak.VerifyNone(t)

	bin, args := helperCommand()
	dir := t.TempDir()

	opts := DefaultOptions()
	opts.TestName = "gset-smoke"
	opts.WorkloadName = "g-set"
	opts.Bin = bin
	opts.Args = args
	opts.NodeCount = 1
	opts.ClientCount = 2
	opts.OpsPerClient = 3
	opts.TimeLimit = 2 * time.Second
	opts.StoreDir = dir

	r, err := New(opts, logging.NewStderr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resultCh := make(chan error, 1)
	go func() {
		_, runErr := r.Run(context.Background())
		resultCh <- runErr
	}()

	select {
	case err := <-resultCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return within 10s: FinalGenerator likely livelocked")
	}
}

func TestRunnerRejectsUnknownWorkload(t *testing.T) {
	opts := DefaultOptions()
	opts.Bin = "/bin/true"
	opts.WorkloadName = "not-a-real-workload"

	r, err := New(opts, logging.NewStderr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := buildWorkload(r.opts, []wire.NodeID{"n1"}); err == nil {
		t.Fatal("expected an error for an unknown workload name")
	}
}

func TestOptionsValidateRejectsMissingBin(t *testing.T) {
	opts := DefaultOptions()
	if _, err := New(opts, nil); err == nil {
		t.Fatal("expected validation to reject a missing bin")
	}
}
