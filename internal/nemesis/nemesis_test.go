package nemesis

import (
	"sync"
	"testing"
	"time"

	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

type fakeNet struct {
	mu     sync.Mutex
	nodes  []wire.NodeID
	drops  int
	heals  int
}

func (f *fakeNet) Nodes() []wire.NodeID { return f.nodes }
func (f *fakeNet) Drop(src, dest wire.NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops++
}
func (f *fakeNet) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heals++
}

func TestPartitionInjectDropsCrossHalfEdges(t *testing.T) {
	net := &fakeNet{nodes: []wire.NodeID{"n1", "n2", "n3", "n4"}}
	p := NewPartition(1)
	if err := p.Inject(net); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if net.drops == 0 {
		t.Fatal("expected at least one drop edge installed")
	}
}

func TestPartitionHealCallsNetHeal(t *testing.T) {
	net := &fakeNet{nodes: []wire.NodeID{"n1", "n2"}}
	p := NewPartition(1)
	if err := p.Heal(net); err != nil {
		t.Fatalf("Heal: %v", err)
	}
	if net.heals != 1 {
		t.Fatalf("expected 1 heal, got %d", net.heals)
	}
}

func TestSchedulerInjectsThenHealsOnStop(t *testing.T) {
	net := &fakeNet{nodes: []wire.NodeID{"n1", "n2"}}
	p := NewPartition(1)
	s := NewScheduler(net, logging.NewStderr(), p, 10*time.Millisecond)
	s.Start()
	time.Sleep(25 * time.Millisecond)
	s.Stop()

	net.mu.Lock()
	defer net.mu.Unlock()
	if net.drops == 0 {
		t.Fatal("expected scheduler to have injected at least once")
	}
	if net.heals == 0 {
		t.Fatal("expected scheduler to have healed at least once")
	}
}

func TestPartitionSingleNodeNoopInject(t *testing.T) {
	net := &fakeNet{nodes: []wire.NodeID{"n1"}}
	p := NewPartition(1)
	if err := p.Inject(net); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if net.drops != 0 {
		t.Fatalf("expected no drops with a single node, got %d", net.drops)
	}
}
