// wrappers.go implements the three consistency adapters (spec §3, §4.4)
// that turn a PersistentService into a running MutableService: a
// dedicated goroutine that loops net.Recv(id, 1s) and replies with
// in_reply_to, in the idiom of the teacher's core.Peer.poll/process
// loop (pkg/mcast/core/peer.go) generalized from GM-Cast dispatch to a
// single-service request/response loop.
package services

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

// Net is the subset of netsim.Net a service needs.
type Net interface {
	AddNode(id wire.NodeID)
	RemoveNode(id wire.NodeID)
	Send(msg wire.Message) (wire.Message, error)
	Recv(node wire.NodeID, timeout time.Duration) (wire.Message, bool)
}

const serviceRecvTick = time.Second

// MutableService is a running, in-harness service endpoint (spec
// §4.4).
type MutableService interface {
	// Handle processes one request body and returns the response
	// body (without in_reply_to merged in; the run loop does that).
	Handle(body json.RawMessage) json.RawMessage
	// Stop terminates the service's goroutine and unregisters it.
	Stop()
}

// serve registers id in net and starts the common request/response
// loop, shared by all three wrappers. handler receives the requesting
// node's id alongside the body so wrappers that track per-client state
// (Sequential) can use it.
func serve(net Net, log logging.Logger, id wire.NodeID, handler func(src wire.NodeID, body json.RawMessage) json.RawMessage) func() {
	net.AddNode(id)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			msg, ok := net.Recv(id, serviceRecvTick)
			if !ok {
				continue
			}
			h, err := msg.Header()
			if err != nil {
				log.Warnf("service %s received malformed body: %s", id, msg.Body)
				continue
			}
			respBody := handler(msg.Src, msg.Body)
			withReply, err := wire.WithInReplyTo(respBody, h.MsgID)
			if err != nil {
				log.Warnf("service %s failed annotating reply: %v", id, err)
				continue
			}
			if _, err := net.Send(wire.Message{Src: id, Dest: msg.Src, Body: withReply}); err != nil {
				log.Warnf("service %s failed replying to %s: %v", id, msg.Src, err)
			}
		}
	}()
	return func() {
		close(stop)
		<-done
		net.RemoveNode(id)
	}
}

// Linearizable wraps a PersistentService in a single atomically
// updated state cell: a strict total order over (state, response)
// pairs (spec §3, §4.4).
type Linearizable struct {
	mu      sync.Mutex
	state   interface{}
	service PersistentService
	stop    func()
}

// NewLinearizable starts a Linearizable-wrapped service bound to id.
func NewLinearizable(net Net, log logging.Logger, id wire.NodeID, service PersistentService) *Linearizable {
	l := &Linearizable{state: service.Initial(), service: service}
	l.stop = serve(net, log.WithField("service", id), id, l.handle)
	return l
}

func (l *Linearizable) handle(_ wire.NodeID, body json.RawMessage) json.RawMessage {
	return l.Handle(body)
}

// Handle applies body against the single shared state cell; exported
// for direct use in tests.
func (l *Linearizable) Handle(body json.RawMessage) json.RawMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, resp, err := l.service.Handle(l.state, body)
	if err != nil {
		return errorBody(wire.CodeCrash, err.Error())
	}
	l.state = next
	return resp
}

func (l *Linearizable) Stop() { l.stop() }

const sequentialBufSize = 32

// Sequential wraps a PersistentService in a ring buffer of the last
// <=32 states plus a per-client watermark (spec §3, §4.4). Read-only
// ops may be served from any index in [clients[c], head]; writes jump
// to a new head and pull the writing client's watermark forward
// (spec §9 decision).
type Sequential struct {
	mu      sync.Mutex
	buf     []interface{} // logical index 0..head, capped to sequentialBufSize entries
	head    int
	base    int // logical index of buf[0]
	clients map[wire.NodeID]int
	service PersistentService
	rng     *rand.Rand
	stop    func()
}

// NewSequential starts a Sequential-wrapped service bound to id.
func NewSequential(net Net, log logging.Logger, id wire.NodeID, service PersistentService) *Sequential {
	s := &Sequential{
		buf:     []interface{}{service.Initial()},
		head:    0,
		base:    0,
		clients: make(map[wire.NodeID]int),
		service: service,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.stop = serve(net, log.WithField("service", id), id, s.dispatch)
	return s
}

// Handle processes a request with no client identity, useful for
// tests that don't care about watermark tracking.
func (s *Sequential) Handle(body json.RawMessage) json.RawMessage {
	return s.dispatch("", body)
}

// dispatch is the entrypoint wired into the service loop: it serves
// body on behalf of requester c, tracking c's watermark into the ring
// buffer.
func (s *Sequential) dispatch(c wire.NodeID, body json.RawMessage) json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	lastIdx, ok := s.clients[c]
	if !ok {
		lastIdx = s.head
	}
	if lastIdx < s.base {
		lastIdx = s.base // the client's watermark fell off the ring buffer
	}

	j := lastIdx
	if s.head > lastIdx {
		j = lastIdx + s.rng.Intn(s.head-lastIdx+1)
	}

	stateAtJ := s.stateAt(j)
	nextState, resp, err := s.service.Handle(stateAtJ, body)
	if err != nil {
		return errorBody(wire.CodeCrash, err.Error())
	}

	if sameState(stateAtJ, nextState) {
		// read-only: serve from j, advance this client's watermark to j.
		s.clients[c] = j
		return resp
	}

	// write: re-run against head to avoid losing a concurrent write
	// observed only at the stale index j, then append and advance.
	headState := s.stateAt(s.head)
	finalState, finalResp, err := s.service.Handle(headState, body)
	if err != nil {
		return errorBody(wire.CodeCrash, err.Error())
	}
	s.appendState(finalState)
	s.head++
	s.clients[c] = s.head
	return finalResp
}

func sameState(a, b interface{}) bool {
	ab, aerr := json.Marshal(a)
	bb, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return false
	}
	return string(ab) == string(bb)
}

func (s *Sequential) stateAt(logicalIdx int) interface{} {
	return s.buf[logicalIdx-s.base]
}

func (s *Sequential) appendState(state interface{}) {
	s.buf = append(s.buf, state)
	if len(s.buf) > sequentialBufSize {
		drop := len(s.buf) - sequentialBufSize
		s.buf = s.buf[drop:]
		s.base += drop
	}
}

func (s *Sequential) Stop() { s.stop() }

const eventualReplicas = 2

// Eventual wraps a Mergeable PersistentService in n gossiped replicas
// (spec §3, §4.4): each request first merges a random pair of
// replicas, then applies the op to a random replica (spec §3
// "Eventual").
type Eventual struct {
	mu       sync.Mutex
	replicas []interface{}
	service  interface {
		PersistentService
		Mergeable
	}
	rng  *rand.Rand
	stop func()
}

// NewEventual starts an Eventual-wrapped service bound to id.
func NewEventual(net Net, log logging.Logger, id wire.NodeID, service interface {
	PersistentService
	Mergeable
}) *Eventual {
	replicas := make([]interface{}, eventualReplicas)
	for i := range replicas {
		replicas[i] = service.Initial()
	}
	e := &Eventual{replicas: replicas, service: service, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	e.stop = serve(net, log.WithField("service", id), id, e.handle)
	return e
}

func (e *Eventual) handle(_ wire.NodeID, body json.RawMessage) json.RawMessage {
	return e.Handle(body)
}

// Handle applies body by merging a random replica pair and then
// applying the op to a random target replica; exported for direct use
// in tests.
func (e *Eventual) Handle(body json.RawMessage) json.RawMessage {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.replicas) >= 2 {
		i, j := e.rng.Intn(len(e.replicas)), e.rng.Intn(len(e.replicas))
		for j == i {
			j = e.rng.Intn(len(e.replicas))
		}
		e.replicas[i] = e.service.Merge(e.replicas[j], e.replicas[i])
	}

	target := e.rng.Intn(len(e.replicas))
	next, resp, err := e.service.Handle(e.replicas[target], body)
	if err != nil {
		return errorBody(wire.CodeCrash, err.Error())
	}
	e.replicas[target] = next
	return resp
}

func (e *Eventual) Stop() { e.stop() }
