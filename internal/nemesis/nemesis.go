// Package nemesis implements scheduled fault injection during a test
// run (spec §2 C7, §4.5): periodically partition a random subset of
// nodes from the rest, then heal. It generalizes the teacher's
// core.Peer reprocessing loop (a time.After-driven retry/backoff
// cycle in pkg/mcast/core/peer.go) from message redelivery into an
// inject/heal scheduling cycle over the Net's fault-control API.
package nemesis

import (
	"math/rand"
	"sync"
	"time"

	"github.com/jabolina/maelstrom-go/internal/logging"
	"github.com/jabolina/maelstrom-go/internal/wire"
)

// Net is the fault-control surface a Fault needs (spec §4.1).
type Net interface {
	Nodes() []wire.NodeID
	Drop(src, dest wire.NodeID)
	Heal()
}

// Fault is one composable injector (spec §4.5: "composable fault
// injectors"): Inject applies it, Heal reverses it. A scheduler drives
// Inject/Heal pairs on a fixed interval.
type Fault interface {
	Inject(net Net) error
	Heal(net Net) error
}

// Partition isolates a random subset of nodes from the rest by
// issuing directional drop(src,dest) edges both ways (spec §4.5: "the
// only fault implemented at the core level is partition").
type Partition struct {
	rng *rand.Rand
}

// NewPartition builds a Partition fault with its own RNG.
func NewPartition(seed int64) *Partition {
	return &Partition{rng: rand.New(rand.NewSource(seed))}
}

// Inject splits net's current nodes into two non-empty halves (if
// possible) and drops every cross-half edge in both directions.
func (p *Partition) Inject(net Net) error {
	nodes := net.Nodes()
	if len(nodes) < 2 {
		return nil
	}
	p.rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })
	cut := 1 + p.rng.Intn(len(nodes)-1)
	left, right := nodes[:cut], nodes[cut:]
	for _, a := range left {
		for _, b := range right {
			net.Drop(a, b)
			net.Drop(b, a)
		}
	}
	return nil
}

// Heal removes every partition installed by any fault (the simulated
// network only tracks one global partition set, so healing is always
// total; spec §4.1 "heal empties partitions").
func (p *Partition) Heal(net Net) error {
	net.Heal()
	return nil
}

// Scheduler ticks a Fault on a fixed interval: inject, wait interval,
// heal, wait interval, repeat, until stopped (spec §4.5
// "interval_seconds is configurable").
type Scheduler struct {
	net      Net
	fault    Fault
	interval time.Duration
	log      logging.Logger

	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewScheduler builds a Scheduler driving fault against net every
// interval.
func NewScheduler(net Net, log logging.Logger, fault Fault, interval time.Duration) *Scheduler {
	return &Scheduler{
		net:      net,
		fault:    fault,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the scheduler's goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	healed := true
	for {
		select {
		case <-s.stop:
			if !healed {
				if err := s.fault.Heal(s.net); err != nil {
					s.log.Warnf("nemesis heal on shutdown failed: %v", err)
				}
			}
			return
		case <-ticker.C:
			if healed {
				if err := s.fault.Inject(s.net); err != nil {
					s.log.Warnf("nemesis inject failed: %v", err)
				} else {
					s.log.Info("nemesis: fault injected")
				}
			} else {
				if err := s.fault.Heal(s.net); err != nil {
					s.log.Warnf("nemesis heal failed: %v", err)
				} else {
					s.log.Info("nemesis: fault healed")
				}
			}
			healed = !healed
		}
	}
}

// Stop signals shutdown, healing the network if a fault is currently
// active, and blocks until the scheduler goroutine exits (spec §4.8
// "on shutdown: nemesis heals the network").
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.stop)
	<-s.done
}
