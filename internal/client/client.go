// Package client implements the synchronous, one-in-flight RPC
// endpoint over Net (spec §2 C4, §4.3). It generalizes the teacher's
// core.Peer observer map (pkg/mcast/core/peer.go: a response channel
// keyed by request UID, resolved when the matching reply arrives)
// down to a single slot, since a Maelstrom client may have at most one
// outstanding request (spec §5 "Ordering guarantees").
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jabolina/maelstrom-go/internal/rpcregistry"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

// Net is the subset of netsim.Net the client needs; kept as an
// interface so tests can swap in a fake without depending on netsim.
type Net interface {
	Send(msg wire.Message) (wire.Message, error)
	Recv(node wire.NodeID, timeout time.Duration) (wire.Message, bool)
	NextClientID() wire.NodeID
}

// ErrInUse is returned by RPC when the client already has an
// outstanding request (spec §4.3 step 1, §5 "programmer error").
var ErrInUse = fmt.Errorf("client has an outstanding request")

// Client is a harness-internal RPC endpoint (spec §3 "Client RPC
// state"). Its "waiting-for" slot is the only mutable field exposed
// across goroutines and is guarded by mu (compare-and-set semantics,
// spec §5).
type Client struct {
	id         wire.NodeID
	net        Net
	registry   *rpcregistry.Registry
	mu         sync.Mutex
	nextMsgID  int
	waitingFor int // 0 means not in use
}

// Open registers a fresh client id in net and returns a Client bound
// to it (spec §4.3 "open").
func Open(net Net, registry *rpcregistry.Registry) *Client {
	id := net.NextClientID()
	if adder, ok := net.(interface{ AddNode(wire.NodeID) }); ok {
		adder.AddNode(id)
	}
	return &Client{id: id, net: net, registry: registry}
}

// ID returns the client's node id.
func (c *Client) ID() wire.NodeID { return c.id }

const defaultTimeout = 5 * time.Second

// RPC sends body (with a fresh msg_id merged in) to dest and blocks
// for the first reply whose in_reply_to matches, up to timeout (spec
// §4.3 "rpc"). Replies that don't match are discarded as belonging to
// requests this client already gave up on.
func (c *Client) RPC(ctx context.Context, dest wire.NodeID, rpcName string, body []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c.mu.Lock()
	if c.waitingFor != 0 {
		c.mu.Unlock()
		return nil, ErrInUse
	}
	c.nextMsgID++
	msgID := c.nextMsgID
	c.waitingFor = msgID
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.waitingFor = 0
		c.mu.Unlock()
	}()

	if c.registry != nil {
		if err := c.registry.ValidateRequest(rpcName, body); err != nil {
			return nil, err
		}
	}

	requestBody, err := wire.WithMsgID(body, msgID)
	if err != nil {
		return nil, fmt.Errorf("merging msg_id: %w", err)
	}

	if _, err := c.net.Send(wire.Message{Src: c.id, Dest: dest, Body: requestBody}); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, wire.NewError(wire.CodeTimeout, "rpc timed out", requestBody)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		reply, ok := c.net.Recv(c.id, remaining)
		if !ok {
			return nil, wire.NewError(wire.CodeTimeout, "rpc timed out", requestBody)
		}

		header, err := reply.Header()
		if err != nil {
			continue // malformed reply, keep waiting for the real one
		}
		if header.InReplyTo != msgID {
			continue // belongs to an abandoned request
		}

		if header.Type == "error" {
			var eb wire.ErrorBody
			if jerr := json.Unmarshal(reply.Body, &eb); jerr == nil {
				return nil, wire.NewError(eb.Code, eb.Text, reply.Body)
			}
			return nil, wire.NewError(wire.CodeCrash, "malformed error body", reply.Body)
		}

		if c.registry != nil {
			if err := c.registry.ValidateResponse(rpcName, reply.Body); err != nil {
				return nil, err
			}
		}
		return reply.Body, nil
	}
}
