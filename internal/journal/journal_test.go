package journal

import (
	"testing"

	"github.com/jabolina/maelstrom-go/internal/wire"
)

func TestRecordSendThenRecv(t *testing.T) {
	j := New()
	m := wire.Message{ID: 1, Src: "c1", Dest: "n1", Body: []byte(`{"type":"read"}`)}
	j.RecordSend(m)
	j.RecordRecv(m)

	entries := j.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != Send || entries[1].Kind != Recv {
		t.Fatalf("expected send then recv, got %v then %v", entries[0].Kind, entries[1].Kind)
	}
	if entries[0].T > entries[1].T {
		t.Fatalf("send.t must be <= recv.t, got %d > %d", entries[0].T, entries[1].T)
	}
}

func TestLenMatchesEntries(t *testing.T) {
	j := New()
	for i := 0; i < 5; i++ {
		j.RecordSend(wire.Message{ID: i, Src: "n1", Dest: "n2", Body: []byte(`{"type":"x"}`)})
	}
	if j.Len() != 5 {
		t.Fatalf("expected 5, got %d", j.Len())
	}
	if len(j.Entries()) != j.Len() {
		t.Fatalf("Entries() and Len() disagree")
	}
}
