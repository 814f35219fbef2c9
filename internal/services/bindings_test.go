package services

import (
	"encoding/json"
	"testing"

	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

func TestStartDefaultsServesAllFourServices(t *testing.T) {
	n := newTestNet()
	stop := StartDefaults(n, logging.NewStderr())
	defer stop()

	n.AddNode("c1")
	defer n.RemoveNode("c1")

	for _, id := range []wire.NodeID{LinKVID, SeqKVID, LWWKVID, LinTSOID} {
		var body json.RawMessage
		if id == LinTSOID {
			body = mustBody(map[string]interface{}{"type": "ts", "msg_id": 1})
		} else {
			body = mustBody(map[string]interface{}{"type": "read", "key": "missing", "msg_id": 1})
		}
		if _, err := n.Send(wire.Message{Src: "c1", Dest: id, Body: body}); err != nil {
			t.Fatalf("send to %s: %v", id, err)
		}
		if _, ok := n.Recv("c1", recvTestTimeout); !ok {
			t.Fatalf("no reply from %s", id)
		}
	}
}
