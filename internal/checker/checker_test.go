package checker

import (
	"testing"
	"time"

	"github.com/jabolina/maelstrom-go/internal/history"
	"github.com/jabolina/maelstrom-go/internal/journal"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

func TestComposeFalseDominates(t *testing.T) {
	got := Compose(Result{Valid: "true"}, Result{Valid: "false"}, Result{Valid: "unknown"})
	if got.Valid != "false" {
		t.Fatalf("expected false to dominate, got %s", got.Valid)
	}
}

func TestComposeUnknownDowngrades(t *testing.T) {
	got := Compose(Result{Valid: "true"}, Result{Valid: "unknown"})
	if got.Valid != "unknown" {
		t.Fatalf("expected unknown to downgrade, got %s", got.Valid)
	}
}

func TestComposeAllTrue(t *testing.T) {
	got := Compose(Result{Valid: "true"}, Result{Valid: "true"})
	if got.Valid != "true" {
		t.Fatalf("expected true, got %s", got.Valid)
	}
}

func TestStatsCountsByFAndType(t *testing.T) {
	entries := []history.Entry{
		history.Invocation(0, "read", nil),
		{Process: 0, Type: history.OK, F: "read"},
		history.Invocation(1, "write", nil),
		{Process: 1, Type: history.Fail, F: "write"},
	}
	result := Stats(entries)
	if result.Valid != "true" {
		t.Fatalf("stats should always be valid, got %s", result.Valid)
	}
	byF := result.Details["by-f"].(map[string]int)
	if byF["read"] != 2 || byF["write"] != 2 {
		t.Fatalf("unexpected by-f counts: %+v", byF)
	}
}

func TestExceptionsFlagsRecordedPanic(t *testing.T) {
	exc := NewExceptions()
	if exc.Check().Valid != "true" {
		t.Fatal("expected no exceptions to be valid")
	}
	exc.Record("client-3", "boom")
	if exc.Check().Valid != "false" {
		t.Fatal("expected recorded exception to invalidate the test")
	}
}

func TestNetStrictFlagsSendRecvMismatch(t *testing.T) {
	j := journal.New()
	j.RecordSend(wire.Message{Src: "c1", Dest: "n1", Body: []byte(`{"type":"read"}`)})
	// no matching recv recorded
	result := Net(j, true)
	if result.Valid != "false" {
		t.Fatalf("expected strict net check to flag the mismatch, got %+v", result)
	}
}

func TestNetLenientIgnoresMismatchWithFaults(t *testing.T) {
	j := journal.New()
	j.RecordSend(wire.Message{Src: "c1", Dest: "n1", Body: []byte(`{"type":"read"}`)})
	result := Net(j, false)
	if result.Valid != "true" {
		t.Fatalf("expected non-strict net check to ignore the mismatch, got %+v", result)
	}
}

func TestPerfSnapshotRendersPrometheusText(t *testing.T) {
	p := NewPerf()
	p.Observe("read", 10*time.Millisecond)
	p.Observe("read", 20*time.Millisecond)
	snapshot, err := p.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot == "" {
		t.Fatal("expected non-empty snapshot text")
	}
}

func TestPerfRecordHistoryPairsInvokeWithCompletion(t *testing.T) {
	p := NewPerf()
	entries := []history.Entry{
		{Process: 0, Type: history.Invoke, F: "read", Time: 0},
		{Process: 0, Type: history.OK, F: "read", Time: int64(5 * time.Millisecond)},
	}
	p.RecordHistory(entries)
	check := p.Check()
	if check.Valid != "true" {
		t.Fatalf("perf should always be valid, got %+v", check)
	}
	if got := len(p.samples["read"]); got != 1 {
		t.Fatalf("expected the invoke/ok pair to yield 1 read sample, got %d", got)
	}
}
