// Package history implements the generator/client-observed operation
// log (spec §3 "History entry") and the with_errors helper that turns
// a client.RPC outcome into a history entry (spec §4.3, §7 stratum 2).
package history

import (
	"time"

	"github.com/jabolina/maelstrom-go/internal/wire"
)

// Type is the Jepsen-style invoke/ok/info/fail discriminator.
type Type string

const (
	Invoke Type = "invoke"
	OK     Type = "ok"
	Info   Type = "info"
	Fail   Type = "fail"
)

// Entry is one record of the observed history (spec §3).
type Entry struct {
	Process int         `json:"process"`
	Time    int64       `json:"time"` // monotonic nanoseconds
	Type    Type        `json:"type"`
	F       string      `json:"f"`
	Value   interface{} `json:"value,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func now() int64 { return time.Now().UnixNano() }

// Invocation starts an entry for f/value at the current time.
func Invocation(process int, f string, value interface{}) Entry {
	return Entry{Process: process, Time: now(), Type: Invoke, F: f, Value: value}
}

// WithErrors wraps the outcome of an operation into its completing
// history entry: definite errors (or :f in idempotentFs) become
// :fail; anything else indefinite becomes :info (spec §4.3, §7).
func WithErrors(process int, f string, value interface{}, err error, idempotentFs map[string]bool) Entry {
	if err == nil {
		return Entry{Process: process, Time: now(), Type: OK, F: f, Value: value}
	}

	definite := false
	if me, ok := err.(*wire.MaelstromError); ok {
		definite = me.Definite
	}

	if definite || idempotentFs[f] {
		return Entry{Process: process, Time: now(), Type: Fail, F: f, Error: err.Error()}
	}
	return Entry{Process: process, Time: now(), Type: Info, F: f, Error: err.Error()}
}
