// Package wire defines the data model that crosses the boundary
// between the harness and a user node: messages, node identifiers and
// the error taxonomy (spec §3). Delivery envelopes live in netsim.
package wire

import "encoding/json"

// NodeID names a participant: a user node ("n1".."nN"), a client
// ("c1".."cM") or a well-known service ("lin-kv", "seq-kv", "lww-kv",
// "lin-tso").
type NodeID string

// Message is the unit Net routes. Body is kept as raw JSON so unknown
// message types stay routable; typed access goes through Body's
// json.RawMessage and the registered per-RPC schemas in rpcregistry.
type Message struct {
	ID   int             `json:"id,omitempty"`
	Src  NodeID          `json:"src"`
	Dest NodeID          `json:"dest"`
	Body json.RawMessage `json:"body"`
}

// BodyHeader is the subset of a body every message carries: the type
// discriminator plus the optional request/response correlation ids.
type BodyHeader struct {
	Type      string `json:"type"`
	MsgID     int    `json:"msg_id,omitempty"`
	InReplyTo int    `json:"in_reply_to,omitempty"`
}

// Header extracts the common fields from a message body without
// requiring the caller to know the concrete payload type.
func (m Message) Header() (BodyHeader, error) {
	var h BodyHeader
	if err := json.Unmarshal(m.Body, &h); err != nil {
		return BodyHeader{}, err
	}
	return h, nil
}

// WithMsgID returns a copy of body with msg_id merged in, as the
// client does before sending a request (spec §4.3 step 2).
func WithMsgID(body json.RawMessage, msgID int) (json.RawMessage, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	m["msg_id"] = msgID
	return json.Marshal(m)
}

// WithInReplyTo returns a copy of body with in_reply_to merged in, as
// a service or node does before replying.
func WithInReplyTo(body json.RawMessage, inReplyTo int) (json.RawMessage, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	m["in_reply_to"] = inReplyTo
	return json.Marshal(m)
}

// MustBody marshals v, panicking on failure. Used for constructing
// well-known bodies (init, topology, errors) where v is always a
// struct we control and marshaling cannot fail.
func MustBody(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
