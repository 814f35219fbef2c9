package checker

import (
	"strings"

	"github.com/jabolina/maelstrom-go/internal/journal"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

// Net summarizes a run's Journal (spec §4.6 "net (from Journal): total
// send/recv counts, clients-vs-servers breakdown, msgs-per-op") and,
// when strict is true (no faults were injected this run), asserts
// every send was eventually received.
func Net(j *journal.Journal, strict bool) Result {
	entries := j.Entries()

	var sends, recvs int
	clientSends, serverSends := 0, 0
	byOp := map[string]int{}

	for _, e := range entries {
		switch e.Kind {
		case journal.Send:
			sends++
			if isClient(e.Message.Src) {
				clientSends++
			} else {
				serverSends++
			}
			if h, err := e.Message.Header(); err == nil && h.Type != "" {
				byOp[h.Type]++
			}
		case journal.Recv:
			recvs++
		}
	}

	details := map[string]interface{}{
		"__checker":    "net",
		"sends":        sends,
		"recvs":        recvs,
		"client-sends": clientSends,
		"server-sends": serverSends,
		"by-op":        byOp,
	}

	if strict && sends != recvs {
		details["error"] = "send/recv count mismatch with no faults injected"
		return Result{Valid: "false", Details: details}
	}
	return Result{Valid: "true", Details: details}
}

func isClient(id wire.NodeID) bool {
	return strings.HasPrefix(string(id), "c")
}
