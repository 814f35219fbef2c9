package workload

import (
	"testing"

	"github.com/jabolina/maelstrom-go/internal/history"
)

func TestBroadcastCheckerFlagsLostMessage(t *testing.T) {
	tracker := &broadcastTracker{}
	tracker.add(1)
	tracker.add(2)

	entries := []history.Entry{
		{Type: history.OK, F: "read", Value: mustRaw(broadcastReadResponseBody{Type: "read_ok", Messages: []int{1}})},
	}
	result := (&broadcastChecker{sent: tracker}).Check(entries)
	if result.Valid != "false" {
		t.Fatalf("expected lost message to be flagged invalid, got %+v", result)
	}
}

func TestGSetCheckerFlagsMissingElement(t *testing.T) {
	tracker := &broadcastTracker{}
	tracker.add(7)

	entries := []history.Entry{
		{Type: history.OK, F: "read", Value: mustRaw(gsetReadResponseBody{Type: "read_ok", Value: []int{}})},
	}
	result := (&gsetChecker{added: tracker}).Check(entries)
	if result.Valid != "false" {
		t.Fatalf("expected missing element to be flagged invalid, got %+v", result)
	}
}

func TestGCounterCheckerFlagsMismatchedTotal(t *testing.T) {
	totals := &counterTotals{}
	totals.add(3)
	totals.add(4)

	entries := []history.Entry{
		{Type: history.OK, F: "read", Value: mustRaw(counterReadResponseBody{Type: "read_ok", Value: 6})},
	}
	result := (&gcounterChecker{totals: totals}).Check(entries)
	if result.Valid != "false" {
		t.Fatalf("expected mismatched total to be flagged invalid, got %+v", result)
	}
}

func TestKafkaCheckerFlagsDuplicateOffset(t *testing.T) {
	log := &kafkaLog{}
	log.recordSend("k1", 0, 10)
	log.recordSend("k1", 0, 11)

	result := (&kafkaChecker{log: log}).Check(nil)
	if result.Valid != "false" {
		t.Fatalf("expected duplicate offset to be flagged invalid, got %+v", result)
	}
}

func TestKafkaCheckerFlagsOffsetGap(t *testing.T) {
	log := &kafkaLog{}
	log.recordSend("k1", 0, 10)
	log.recordSend("k1", 2, 30)

	result := (&kafkaChecker{log: log}).Check(nil)
	if result.Valid != "false" {
		t.Fatalf("expected a skipped offset to be flagged invalid, got %+v", result)
	}
}

func TestKafkaCheckerFlagsLostWrite(t *testing.T) {
	log := &kafkaLog{}
	log.recordSend("k1", 0, 10)
	log.recordSend("k1", 1, 20)
	log.recordPoll("k1", 0, 10)
	log.recordPoll("k1", 1, 999) // poll returned a value that was never sent at offset 1

	result := (&kafkaChecker{log: log}).Check(nil)
	if result.Valid != "false" {
		t.Fatalf("expected a mismatched polled value to be flagged invalid, got %+v", result)
	}
}

func TestKafkaCheckerAcceptsConsistentLog(t *testing.T) {
	log := &kafkaLog{}
	log.recordSend("k1", 0, 10)
	log.recordSend("k1", 1, 20)
	log.recordPoll("k1", 0, 10)
	log.recordPoll("k1", 1, 20)

	result := (&kafkaChecker{log: log}).Check(nil)
	if result.Valid != "true" {
		t.Fatalf("expected a consistent send/poll log to check out, got %+v", result)
	}
}

func TestUniqueIDsCheckerFlagsDuplicate(t *testing.T) {
	entries := []history.Entry{
		{Type: history.OK, F: "generate", Value: mustRaw(generateResponseBody{Type: "generate_ok", ID: "a"})},
		{Type: history.OK, F: "generate", Value: mustRaw(generateResponseBody{Type: "generate_ok", ID: "a"})},
	}
	result := (uniqueIDsChecker{}).Check(entries)
	if result.Valid != "false" {
		t.Fatalf("expected duplicate id to be flagged invalid, got %+v", result)
	}
}

func TestUniqueIDsCheckerAcceptsDistinctIDs(t *testing.T) {
	entries := []history.Entry{
		{Type: history.OK, F: "generate", Value: mustRaw(generateResponseBody{Type: "generate_ok", ID: "a"})},
		{Type: history.OK, F: "generate", Value: mustRaw(generateResponseBody{Type: "generate_ok", ID: "b"})},
	}
	result := (uniqueIDsChecker{}).Check(entries)
	if result.Valid != "true" {
		t.Fatalf("expected distinct ids to check out, got %+v", result)
	}
}
