// Package supervisor implements the process supervisor (spec §2 C3,
// §4.2): spawning a user binary as one node, bridging its
// stdin/stdout/stderr to Net, and its orderly shutdown. It generalizes
// the teacher's core.Peer.poll loop (pkg/mcast/core/peer.go: a select
// over transport-listen / internal-update / context-done) from an
// in-process peer to a subprocess I/O pump.
package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/netsim"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

const (
	initTimeout = 10 * time.Second
	killGrace   = 5 * time.Second
	recvTick    = time.Second
)

// ControlNodeID is the harness's own pseudo-node id, used as the
// sender of control messages (currently just init) that don't
// originate from any client or service. The Test Runner registers it
// in Net exactly once per run before starting any node.
const ControlNodeID wire.NodeID = "maelstrom"

// nextControlMsgID allocates msg_ids for control-plane RPCs (init)
// shared across every node's handshake in a run.
var nextControlMsgID atomic.Int64

// initRequest/initOK are the handshake bodies (spec §6).
type initRequest struct {
	Type    string        `json:"type"`
	MsgID   int           `json:"msg_id"`
	NodeID  wire.NodeID   `json:"node_id"`
	NodeIDs []wire.NodeID `json:"node_ids"`
}

type initOK struct {
	Type      string `json:"type"`
	InReplyTo int    `json:"in_reply_to"`
}

// Node is one running supervised user process.
type Node struct {
	id     wire.NodeID
	net    *netsim.Net
	log    logging.Logger
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logOut io.WriteCloser

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// StartNode launches bin with args as node id, wires its stdio to
// net, and completes the init handshake (spec §4.2). logFile receives
// a copy of the child's stderr.
func StartNode(net *netsim.Net, log logging.Logger, id wire.NodeID, bin string, args []string, allNodeIDs []wire.NodeID, logFile io.WriteCloser) (*Node, error) {
	net.AddNode(id)

	cmd := exec.Command(bin, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		net.RemoveNode(id)
		return nil, fmt.Errorf("stdin pipe for %s: %w", id, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		net.RemoveNode(id)
		return nil, fmt.Errorf("stdout pipe for %s: %w", id, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		net.RemoveNode(id)
		return nil, fmt.Errorf("stderr pipe for %s: %w", id, err)
	}

	if err := cmd.Start(); err != nil {
		net.RemoveNode(id)
		return nil, fmt.Errorf("starting %s: %w", bin, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	n := &Node{id: id, net: net, log: log.WithField("node", id), cmd: cmd, stdin: stdin, logOut: logFile, ctx: ctx, cancel: cancel, group: group}

	group.Go(func() error { n.stdinWriter(gctx); return nil })
	group.Go(func() error { n.stdoutReader(stdout); return nil })
	group.Go(func() error { n.stderrCopier(stderr); return nil })

	if err := n.handshake(allNodeIDs); err != nil {
		n.Stop()
		return nil, err
	}
	return n, nil
}

// handshake sends the init RPC and waits for init_ok within
// initTimeout (spec §4.2 step 4, §6). The reply lands in
// ControlNodeID's mailbox (the child replies to whatever dest the
// init message carried as its src), so handshake reads from there and
// discards replies that don't match this call's msg_id -- the same
// correlation pattern client.Client.RPC uses, since several nodes may
// be handshaking concurrently and sharing the control mailbox.
func (n *Node) handshake(allNodeIDs []wire.NodeID) error {
	msgID := int(nextControlMsgID.Add(1))
	body := wire.MustBody(initRequest{Type: "init", MsgID: msgID, NodeID: n.id, NodeIDs: allNodeIDs})
	if _, err := n.net.Send(wire.Message{Src: ControlNodeID, Dest: n.id, Body: body}); err != nil {
		return fmt.Errorf("sending init to %s: %w", n.id, err)
	}

	deadline := time.Now().Add(initTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("node %s did not reply init_ok within %s", n.id, initTimeout)
		}
		msg, ok := n.net.Recv(ControlNodeID, remaining)
		if !ok {
			return fmt.Errorf("node %s did not reply init_ok within %s", n.id, initTimeout)
		}
		if msg.Src != n.id {
			continue // another node's handshake reply, not ours
		}
		h, err := msg.Header()
		if err != nil {
			continue
		}
		if h.InReplyTo != msgID {
			continue
		}
		if h.Type != "init_ok" {
			return fmt.Errorf("node %s sent unexpected init reply: %s", n.id, msg.Body)
		}
		return nil
	}
}

// stdinWriter repeatedly pulls from Net and writes each message as one
// JSON line to the child's stdin, until shutdown. I/O errors on a
// closed pipe are ignored (spec §4.2).
func (n *Node) stdinWriter(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, ok := n.net.Recv(n.id, recvTick)
		if !ok {
			continue
		}
		line, err := json.Marshal(msg)
		if err != nil {
			n.log.Warnf("failed marshaling outbound message: %v", err)
			continue
		}
		if _, err := n.stdin.Write(append(line, '\n')); err != nil {
			return // pipe closed, node is shutting down
		}
	}
}

// stdoutReader reads newline-delimited JSON from the child's stdout
// and forwards each as a Net send; malformed lines are warned about,
// not fatal (spec §4.2).
func (n *Node) stdoutReader(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		var msg wire.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			n.log.Warnf("malformed line from %s: %s (%v)", n.id, line, err)
			continue
		}
		if _, err := n.net.Send(msg); err != nil {
			n.log.Warnf("failed routing message from %s: %v", n.id, err)
		}
	}
}

// stderrCopier copies the child's stderr to its log file, or discards
// it when the node has no log file; nothing is sent to the harness
// logger.
func (n *Node) stderrCopier(stderr io.Reader) {
	if n.logOut == nil {
		io.Copy(io.Discard, stderr)
		return
	}
	io.Copy(n.logOut, stderr)
}

// Stop signals shutdown, force-kills after killGrace, joins the three
// activities, and unregisters the node from Net (spec §4.2
// "stop_node").
func (n *Node) Stop() {
	n.cancel()

	done := make(chan error, 1)
	go func() { done <- n.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(killGrace):
		if n.cmd.Process != nil {
			n.cmd.Process.Kill()
		}
		<-done
	}

	n.stdin.Close()
	if n.logOut != nil {
		n.logOut.Close()
	}
	n.group.Wait()
	n.net.RemoveNode(n.id)
}

// ID returns the node's id.
func (n *Node) ID() wire.NodeID { return n.id }
