package services

import (
	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

// Well-known service ids a workload's clients address directly (spec
// §3 "Services").
const (
	LinKVID  wire.NodeID = "lin-kv"
	SeqKVID  wire.NodeID = "seq-kv"
	LWWKVID  wire.NodeID = "lww-kv"
	LinTSOID wire.NodeID = "lin-tso"
)

// StartDefaults brings up the four standard services the harness
// exposes to user nodes (spec §3): lin-kv (Linearizable+PersistentKV),
// seq-kv (Sequential+PersistentKV), lww-kv (Eventual+LWWKV) and
// lin-tso (Linearizable+PersistentTSO). It returns a single Stop
// closure that tears all four down in registration order.
func StartDefaults(net Net, log logging.Logger) (stop func()) {
	lin := NewLinearizable(net, log, LinKVID, NewPersistentKV())
	seq := NewSequential(net, log, SeqKVID, NewPersistentKV())
	lww := NewEventual(net, log, LWWKVID, NewLWWKV())
	tso := NewLinearizable(net, log, LinTSOID, NewPersistentTSO())

	return func() {
		lin.Stop()
		seq.Stop()
		lww.Stop()
		tso.Stop()
	}
}
