package workload

import (
	"reflect"
	"testing"

	"github.com/jabolina/maelstrom-go/internal/history"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

func TestRangeSetShiftContainsEverySubsetSum(t *testing.T) {
	rs := newRangeSet(10)
	rs.shift(5)
	rs.shift(-3)

	got := rs.snapshot()
	// acceptable sums: neither indeterminate add landed (10), only +5
	// (15), only -3 (7), or both (12).
	for _, v := range []int{10, 15, 7, 12} {
		if !rs.contains(v) {
			t.Fatalf("expected %d to be contained in %+v", v, got)
		}
	}
	for _, v := range []int{5, 2, 11} {
		if rs.contains(v) {
			t.Fatalf("did not expect %d to be contained in %+v", v, got)
		}
	}
}

func TestCoalesceMergesAdjacentAndOverlapping(t *testing.T) {
	in := []pnRange{{0, 2}, {3, 5}, {10, 12}, {11, 14}}
	got := coalesce(in)
	want := []pnRange{{0, 5}, {10, 14}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("coalesce mismatch: got %+v want %+v", got, want)
	}
}

func TestAddOutcomeClassification(t *testing.T) {
	if addOutcome(nil) != "ok" {
		t.Fatal("nil error should be ok")
	}
	if addOutcome(wire.NewError(wire.CodeTimeout, "rpc timed out", nil)) != "indeterminate" {
		t.Fatal("non-definite error should be indeterminate")
	}
	if addOutcome(wire.NewError(wire.CodeKeyDoesNotExist, "no such key", nil)) != "failed" {
		t.Fatal("definite error should be failed")
	}
}

func TestPNCounterCheckerRejectsOutOfRangeRead(t *testing.T) {
	state := &pnCounterState{}
	state.recordOK(10)
	state.recordIndeterminate(3)
	checker := &pnCounterChecker{state: state}

	entries := []history.Entry{
		{Type: history.OK, F: "read", Value: mustRaw(counterReadResponseBody{Type: "read_ok", Value: 999})},
	}
	result := checker.Check(entries)
	if result.Valid != "false" {
		t.Fatalf("expected out-of-range read to be flagged invalid, got %+v", result)
	}
}
