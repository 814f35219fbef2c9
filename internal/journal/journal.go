// Package journal implements the append-only send/recv record (spec
// §2 C1, §3 "Journal entry"), generalized from the teacher's
// pkg/mcast/types.Storage (Set/Get over StorageEntry) to an in-memory
// log of send/recv events instead of replicated state.
package journal

import (
	"sync"
	"time"

	"github.com/jabolina/maelstrom-go/internal/wire"
)

// Kind discriminates a journal entry.
type Kind int

const (
	Send Kind = iota
	Recv
)

func (k Kind) String() string {
	if k == Send {
		return "send"
	}
	return "recv"
}

// Entry is one journal record (spec §3).
type Entry struct {
	Kind    Kind
	T       int64 // monotonic nanoseconds
	Message wire.Message
}

// Journal is an append-only, thread-safe record of every send/recv.
// It is the sole mutable collection shared across Net's mailboxes and
// the net checker; writes are serialized under one mutex (spec §5
// "Shared-resource policy").
type Journal struct {
	mu      sync.Mutex
	entries []Entry
}

// New creates an empty Journal.
func New() *Journal {
	return &Journal{}
}

// RecordSend appends a send entry at the current monotonic time.
func (j *Journal) RecordSend(m wire.Message) {
	j.append(Entry{Kind: Send, T: time.Now().UnixNano(), Message: m})
}

// RecordRecv appends a recv entry at the current monotonic time.
func (j *Journal) RecordRecv(m wire.Message) {
	j.append(Entry{Kind: Recv, T: time.Now().UnixNano(), Message: m})
}

func (j *Journal) append(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

// Entries returns a snapshot copy of every recorded entry, ordered by
// append order (not necessarily by T, since sends and recvs interleave
// from independent goroutines).
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Len reports the number of recorded entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
