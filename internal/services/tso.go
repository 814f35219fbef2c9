package services

import (
	"encoding/json"

	"github.com/jabolina/maelstrom-go/internal/wire"
)

// PersistentTSO is the monotonic integer counter backing lin-tso
// (spec §3 "PersistentTSO"): op "ts" returns the current value n and
// advances the state to n+1.
type PersistentTSO struct{}

// NewPersistentTSO builds a PersistentTSO state machine.
func NewPersistentTSO() *PersistentTSO { return &PersistentTSO{} }

func (t *PersistentTSO) Initial() interface{} { return 0 }

func (t *PersistentTSO) Handle(state interface{}, body json.RawMessage) (interface{}, json.RawMessage, error) {
	n := state.(int)
	var op struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &op); err != nil {
		return state, nil, err
	}
	if op.Type != "ts" {
		return state, errorBody(wire.CodeNotSupported, "unsupported op "+op.Type), nil
	}
	resp, _ := json.Marshal(struct {
		Type string `json:"type"`
		TS   int    `json:"ts"`
	}{Type: "ts_ok", TS: n})
	return n + 1, resp, nil
}
