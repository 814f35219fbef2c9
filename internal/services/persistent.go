// Package services implements the in-harness mock infrastructure user
// nodes may call (spec §2 C5, §4.4): PersistentKV, LWWKV and
// PersistentTSO state machines, wrapped by the Linearizable/
// Sequential/Eventual consistency adapters into running
// MutableServices. It generalizes the teacher's types.StateMachine
// interface (Commit/Restore over an explicit Storage) into a pure
// handle(state, message) -> (state', response) function, since here
// the state itself (not a side-effecting store) is the thing that
// gets wrapped for different consistency levels.
package services

import (
	"encoding/json"

	"github.com/jabolina/maelstrom-go/internal/wire"
)

// PersistentService is a pure state machine: given the current state
// and a request body, it returns the next state and a response body.
// It never mutates its receiver in place (spec §3 "Service state").
type PersistentService interface {
	// Handle applies body to state, returning the new state and the
	// response body to send back.
	Handle(state interface{}, body json.RawMessage) (newState interface{}, response json.RawMessage, err error)
	// Initial returns a fresh zero state.
	Initial() interface{}
}

// Mergeable is implemented by services usable under the Eventual
// wrapper (spec §3, §4.4: "Requires merge").
type Mergeable interface {
	Merge(a, b interface{}) interface{}
}

// kvOpBody is the common shape of read/write/cas requests (spec §6,
// §4.4).
type kvOpBody struct {
	Type              string          `json:"type"`
	Key               json.RawMessage `json:"key"`
	Value             json.RawMessage `json:"value,omitempty"`
	From              json.RawMessage `json:"from,omitempty"`
	To                json.RawMessage `json:"to,omitempty"`
	CreateIfNotExists bool            `json:"create_if_not_exists,omitempty"`
}

func keyString(raw json.RawMessage) string { return string(raw) }

// PersistentKV is the linearizable/sequential-backed key-value store
// (spec §3 "PersistentKV"). Keys and values are opaque JSON values,
// compared by their canonical encoded form.
type PersistentKV struct{}

// NewPersistentKV builds a PersistentKV state machine.
func NewPersistentKV() *PersistentKV { return &PersistentKV{} }

func (p *PersistentKV) Initial() interface{} {
	return map[string]json.RawMessage{}
}

func (p *PersistentKV) Handle(state interface{}, body json.RawMessage) (interface{}, json.RawMessage, error) {
	m := state.(map[string]json.RawMessage)
	var op kvOpBody
	if err := json.Unmarshal(body, &op); err != nil {
		return state, nil, err
	}
	key := keyString(op.Key)

	switch op.Type {
	case "read":
		v, ok := m[key]
		if !ok {
			return state, errorBody(wire.CodeKeyDoesNotExist, "key does not exist"), nil
		}
		return state, okBody(map[string]json.RawMessage{"type": rawString("read_ok"), "value": v}), nil

	case "write":
		next := cloneMap(m)
		next[key] = op.Value
		return next, okBody(map[string]json.RawMessage{"type": rawString("write_ok")}), nil

	case "cas":
		current, exists := m[key]
		if !exists {
			if op.CreateIfNotExists {
				next := cloneMap(m)
				next[key] = op.To
				return next, okBody(map[string]json.RawMessage{"type": rawString("cas_ok")}), nil
			}
			return state, errorBody(wire.CodeKeyDoesNotExist, "key does not exist"), nil
		}
		if !jsonEqual(current, op.From) {
			return state, errorBody(wire.CodePreconditionFailed, "expected value does not match"), nil
		}
		next := cloneMap(m)
		next[key] = op.To
		return next, okBody(map[string]json.RawMessage{"type": rawString("cas_ok")}), nil

	default:
		return state, errorBody(wire.CodeNotSupported, "unsupported op "+op.Type), nil
	}
}

func cloneMap(m map[string]json.RawMessage) map[string]json.RawMessage {
	next := make(map[string]json.RawMessage, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	return next
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv interface{}
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	ae, _ := json.Marshal(av)
	be, _ := json.Marshal(bv)
	return string(ae) == string(be)
}

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func okBody(fields map[string]json.RawMessage) json.RawMessage {
	out := map[string]json.RawMessage{}
	for k, v := range fields {
		out[k] = v
	}
	b, _ := json.Marshal(out)
	return b
}

func errorBody(code int, text string) json.RawMessage {
	b, _ := json.Marshal(wire.ErrorBody{Type: "error", Code: code, Text: text})
	return b
}
