package services

import (
	"encoding/json"

	"github.com/jabolina/maelstrom-go/internal/wire"
)

// lwwEntry is one key's value plus the logical clock tick it was
// written at (spec §3 "LWWKV").
type lwwEntry struct {
	Ts    int             `json:"ts"`
	Value json.RawMessage `json:"value"`
}

// lwwState is LWWKV's persistent state: a logical clock plus the map
// of timestamped entries.
type lwwState struct {
	Clock int
	M     map[string]lwwEntry
}

// LWWKV is the last-write-wins key-value store backing lww-kv (spec
// §3, §4.4). It implements Mergeable so the Eventual wrapper can
// gossip replicas of it.
type LWWKV struct{}

// NewLWWKV builds an LWWKV state machine.
func NewLWWKV() *LWWKV { return &LWWKV{} }

func (l *LWWKV) Initial() interface{} {
	return lwwState{Clock: 0, M: map[string]lwwEntry{}}
}

func (l *LWWKV) Handle(state interface{}, body json.RawMessage) (interface{}, json.RawMessage, error) {
	s := state.(lwwState)
	var op kvOpBody
	if err := json.Unmarshal(body, &op); err != nil {
		return state, nil, err
	}
	key := keyString(op.Key)
	nextClock := s.Clock + 1

	switch op.Type {
	case "read":
		entry, ok := s.M[key]
		if !ok {
			return s, errorBody(wire.CodeKeyDoesNotExist, "key does not exist"), nil
		}
		return lwwState{Clock: nextClock, M: s.M}, okBody(map[string]json.RawMessage{"type": rawString("read_ok"), "value": entry.Value}), nil

	case "write":
		next := cloneLWW(s.M)
		next[key] = lwwEntry{Ts: nextClock, Value: op.Value}
		return lwwState{Clock: nextClock, M: next}, okBody(map[string]json.RawMessage{"type": rawString("write_ok")}), nil

	case "cas":
		entry, exists := s.M[key]
		if !exists {
			if op.CreateIfNotExists {
				next := cloneLWW(s.M)
				next[key] = lwwEntry{Ts: nextClock, Value: op.To}
				return lwwState{Clock: nextClock, M: next}, okBody(map[string]json.RawMessage{"type": rawString("cas_ok")}), nil
			}
			return s, errorBody(wire.CodeKeyDoesNotExist, "key does not exist"), nil
		}
		if !jsonEqual(entry.Value, op.From) {
			return s, errorBody(wire.CodePreconditionFailed, "expected value does not match"), nil
		}
		next := cloneLWW(s.M)
		next[key] = lwwEntry{Ts: nextClock, Value: op.To}
		return lwwState{Clock: nextClock, M: next}, okBody(map[string]json.RawMessage{"type": rawString("cas_ok")}), nil

	default:
		return s, errorBody(wire.CodeNotSupported, "unsupported op "+op.Type), nil
	}
}

func cloneLWW(m map[string]lwwEntry) map[string]lwwEntry {
	next := make(map[string]lwwEntry, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	return next
}

// Merge resolves two LWWKV replicas per-key by max ts; on a tie it
// prefers b (the receiver), per §9's stated reference behavior, and
// this is stable under repeated merges since which side is "the
// receiver" never changes for a given pairing.
func (l *LWWKV) Merge(a, b interface{}) interface{} {
	as, bs := a.(lwwState), b.(lwwState)
	merged := cloneLWW(bs.M)
	for k, av := range as.M {
		bv, ok := merged[k]
		if !ok || av.Ts > bv.Ts {
			merged[k] = av
		}
	}
	clock := as.Clock
	if bs.Clock > clock {
		clock = bs.Clock
	}
	return lwwState{Clock: clock, M: merged}
}
