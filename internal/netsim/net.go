// Package netsim implements the simulated network (spec §2 C2, §4.1):
// per-destination priority mailboxes ordered by delivery deadline,
// configurable latency and loss, one-directional partitions, and a
// fault-control API. It generalizes the teacher's core.Transport
// interface (Broadcast/Unicast/Listen/Close) from a real multicast
// transport to an in-process, fully-controlled one.
package netsim

import (
	"container/heap"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/jabolina/maelstrom-go/internal/journal"
	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

// ErrNodeNotFound is returned by Send when src or dest is not
// registered (spec §4.1, error code 1).
var ErrNodeNotFound = errors.New("node-not-found")

// envelope is the Net-internal wrapper around a message (spec §3).
type envelope struct {
	deadline int64 // monotonic nanoseconds
	message  wire.Message
	index    int // heap index, maintained by container/heap
}

// envelopeHeap is a min-heap ordered by deadline, backing one node's
// mailbox. container/heap is the correct stdlib fit for a small,
// in-memory, deadline-ordered priority queue (see DESIGN.md).
type envelopeHeap []*envelope

func (h envelopeHeap) Len() int            { return len(h) }
func (h envelopeHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h envelopeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *envelopeHeap) Push(x interface{}) {
	e := x.(*envelope)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *envelopeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// mailbox is one node's inbound queue: a heap protected by a mutex and
// a condition variable so recv can block until an envelope exists or
// the node is removed.
type mailbox struct {
	mu      sync.Mutex
	cond    *sync.Cond
	heap    envelopeHeap
	closed  bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *mailbox) push(e *envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	heap.Push(&m.heap, e)
	m.cond.Broadcast()
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}

// peek returns the earliest-deadline envelope without removing it, or
// nil if empty.
func (m *mailbox) peek() *envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.heap) == 0 {
		return nil
	}
	return m.heap[0]
}

// popIfHead removes and returns the head envelope iff it still equals
// want (guards against a concurrent push changing the head between
// peek and pop).
func (m *mailbox) popIfHead(want *envelope) *envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.heap) == 0 || m.heap[0] != want {
		return nil
	}
	return heap.Pop(&m.heap).(*envelope)
}

// Net is the shared, mutable simulated network (spec §3 "Network
// state"). All fields other than the per-node mailboxes (internally
// thread-safe) and the journal (append-only under its own lock) are
// guarded by mu.
type Net struct {
	mu            sync.Mutex
	mailboxes     map[wire.NodeID]*mailbox
	partitions    map[wire.NodeID]map[wire.NodeID]bool // receiver -> dropped senders
	latencyMeanMs float64
	pLoss         float64
	nextMsgID     int
	nextClientID  int
	logSend       bool
	logRecv       bool

	journal *journal.Journal
	log     logging.Logger
	rng     *rand.Rand
	rngMu   sync.Mutex
}

// Option configures a new Net.
type Option func(*Net)

// WithLatencyMeanMs sets the mean one-way latency in milliseconds;
// actual delay per message is uniform in [0, mean].
func WithLatencyMeanMs(ms float64) Option { return func(n *Net) { n.latencyMeanMs = ms } }

// WithLossProbability sets the fraction of sends silently discarded.
func WithLossProbability(p float64) Option { return func(n *Net) { n.pLoss = p } }

// WithSeed makes loss/latency sampling deterministic.
func WithSeed(seed int64) Option { return func(n *Net) { n.rng = rand.New(rand.NewSource(seed)) } }

// WithLogging toggles per-send/recv debug logging.
func WithLogging(logSend, logRecv bool) Option {
	return func(n *Net) { n.logSend, n.logRecv = logSend, logRecv }
}

// New builds a Net with no nodes registered yet.
func New(log logging.Logger, j *journal.Journal, opts ...Option) *Net {
	n := &Net{
		mailboxes:     make(map[wire.NodeID]*mailbox),
		partitions:    make(map[wire.NodeID]map[wire.NodeID]bool),
		latencyMeanMs: 0,
		pLoss:         0,
		journal:       j,
		log:           log,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// AddNode registers a mailbox for id. Re-adding an id that is already
// registered is undefined (spec §4.1); callers must balance add/remove.
func (n *Net) AddNode(id wire.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mailboxes[id] = newMailbox()
}

// RemoveNode unregisters id's mailbox, closing it so any blocked recv
// wakes with nil.
func (n *Net) RemoveNode(id wire.NodeID) {
	n.mu.Lock()
	box, ok := n.mailboxes[id]
	delete(n.mailboxes, id)
	n.mu.Unlock()
	if ok {
		box.close()
	}
}

// NextClientID allocates a fresh "cK" client id.
func (n *Net) NextClientID() wire.NodeID {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextClientID++
	return wire.NodeID("c" + strconv.Itoa(n.nextClientID))
}

func (n *Net) randFloat() float64 {
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return n.rng.Float64()
}

// Send assigns a fresh id to msg, journals the send, and -- subject to
// p_loss -- enqueues it on dest's mailbox with a randomly-sampled
// deadline (spec §4.1).
func (n *Net) Send(msg wire.Message) (wire.Message, error) {
	n.mu.Lock()
	if _, ok := n.mailboxes[msg.Src]; !ok {
		n.mu.Unlock()
		return wire.Message{}, ErrNodeNotFound
	}
	destBox, ok := n.mailboxes[msg.Dest]
	if !ok {
		n.mu.Unlock()
		return wire.Message{}, ErrNodeNotFound
	}
	n.nextMsgID++
	msg.ID = n.nextMsgID
	latency := n.latencyMeanMs
	loss := n.pLoss
	n.mu.Unlock()

	n.journal.RecordSend(msg)
	if n.logSend {
		n.log.Debugf("send %s -> %s: %s", msg.Src, msg.Dest, string(msg.Body))
	}

	if n.randFloat() < loss {
		return msg, nil // silently discarded, not an error (spec §4.1)
	}

	delayMs := n.randFloat() * latency
	deadline := time.Now().Add(time.Duration(delayMs * float64(time.Millisecond))).UnixNano()
	destBox.push(&envelope{deadline: deadline, message: msg})
	return msg, nil
}

// Recv pops the earliest-deadline envelope destined for node,
// dropping (silently, and continuing to dequeue) any envelope whose
// sender is currently partitioned from node, until timeout elapses
// (spec §4.1: the partition check applies at dequeue time). Returns
// (Message{}, false) on timeout or if node was removed.
func (n *Net) Recv(node wire.NodeID, timeout time.Duration) (wire.Message, bool) {
	n.mu.Lock()
	box, ok := n.mailboxes[node]
	n.mu.Unlock()
	if !ok {
		return wire.Message{}, false
	}

	deadlineAbs := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadlineAbs)
		if remaining <= 0 {
			return wire.Message{}, false
		}
		e, ok := n.waitForHead(box, remaining)
		if !ok {
			return wire.Message{}, false
		}

		now := time.Now().UnixNano()
		if e.deadline > now {
			sleep := time.Duration(e.deadline - now)
			if sleep > remaining {
				sleep = remaining
			}
			time.Sleep(sleep)
			remaining = time.Until(deadlineAbs)
			if remaining < 0 {
				return wire.Message{}, false
			}
		}

		popped := box.popIfHead(e)
		if popped == nil {
			continue // head changed concurrently, retry
		}

		if n.isPartitioned(node, popped.message.Src) {
			continue // dropped at recv time (spec §9 open question)
		}

		n.journal.RecordRecv(popped.message)
		if n.logRecv {
			n.log.Debugf("recv %s <- %s: %s", node, popped.message.Src, string(popped.message.Body))
		}
		return popped.message, true
	}
}

// waitForHead blocks (up to timeout) until box has a head envelope or
// is closed, returning it without removing it.
func (n *Net) waitForHead(box *mailbox, timeout time.Duration) (*envelope, bool) {
	deadline := time.Now().Add(timeout)
	box.mu.Lock()
	defer box.mu.Unlock()
	for len(box.heap) == 0 && !box.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		waitOnCond(box.cond, remaining)
	}
	if box.closed && len(box.heap) == 0 {
		return nil, false
	}
	return box.heap[0], true
}

// waitOnCond waits on cond for at most timeout, using a helper
// goroutine to re-signal the broadcast after the timeout so the
// waiting goroutine does not block forever. cond.L is held by the
// caller on entry and on return.
func waitOnCond(cond *sync.Cond, timeout time.Duration) {
	timer := time.AfterFunc(timeout, cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
}

func (n *Net) isPartitioned(receiver, sender wire.NodeID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	senders, ok := n.partitions[receiver]
	if !ok {
		return false
	}
	return senders[sender]
}

// Drop installs a one-directional partition: src's future sends to
// dest will be silently dropped at dest's next recv (spec §3, §4.5).
func (n *Net) Drop(src, dest wire.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	senders, ok := n.partitions[dest]
	if !ok {
		senders = make(map[wire.NodeID]bool)
		n.partitions[dest] = senders
	}
	senders[src] = true
}

// Heal empties every partition.
func (n *Net) Heal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.partitions = make(map[wire.NodeID]map[wire.NodeID]bool)
}

// Slow scales mean latency x10.
func (n *Net) Slow() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.latencyMeanMs *= 10
}

// Fast scales mean latency /10.
func (n *Net) Fast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.latencyMeanMs /= 10
}

// Flaky sets p_loss to 0.5.
func (n *Net) Flaky() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pLoss = 0.5
}

// Journal exposes the underlying journal for checkers.
func (n *Net) Journal() *journal.Journal { return n.journal }

// Nodes returns the currently registered node ids, for diagnostics and
// the nemesis's random-subset selection.
func (n *Net) Nodes() []wire.NodeID {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]wire.NodeID, 0, len(n.mailboxes))
	for id := range n.mailboxes {
		out = append(out, id)
	}
	return out
}
