package sched

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Node is the scheduler's handle on a worker. Implementations live in the
// transport layer; the scheduler references nodes but never owns them.
// DispatchItems and SendShutdown are fire-and-forget: the scheduler does not
// wait for acknowledgment.
type Node interface {
	ID() string
	IsDraining() bool
	SendShutdown()
	DispatchItems(indices []int)
}

// Registry supplies, per node, the ordered test IDs that node reported
// having discovered. The scheduler reads it exactly once, at
// collection-complete time, to build the authoritative collection and check
// cross-node agreement.
type Registry interface {
	Collection(nodeID string) ([]string, bool)
}

// Config holds scheduling parameters for the default bounded-queue policy.
type Config struct {
	MinQueueSize  int
	MaxQueueSize  int
	SlowThreshold time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinQueueSize:  2,
		MaxQueueSize:  2,
		SlowThreshold: 100 * time.Millisecond,
	}
}

// Scheduler owns the global pending set and per-node assigned-but-incomplete
// queues, and decides on each progress report how many items to send where
// and when to shut a node down.
//
// All methods must be called from a single goroutine: the surrounding event
// dispatch guarantees one invocation completes before the next begins, so no
// locking happens here. Methods never block and perform no I/O beyond the
// fire-and-forget Node calls.
type Scheduler struct {
	policy   Policy
	registry Registry
	logger   *slog.Logger

	nodes  []Node           // registration order; round-robin is stable over this
	queues map[string][]int // nodeID -> assigned-but-incomplete indices, FIFO

	// collection stays nil until all nodes agree; it doubles as the
	// "initial distribution happened" flag.
	collection []string
	pending    []int
	completed  int
}

// New creates a Scheduler using the given policy. A nil policy selects the
// bounded-queue policy built from cfg; a nil logger discards diagnostics.
func New(registry Registry, cfg Config, policy Policy, logger *slog.Logger) *Scheduler {
	if policy == nil {
		policy = NewBoundedQueuePolicy(cfg)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		policy:   policy,
		registry: registry,
		logger:   logger.With("component", "sched", "policy", policy.Name()),
		queues:   make(map[string][]int),
	}
}

// AddNode registers a node with the scheduler. Nodes may join before or
// during a run; a joining node gets work once Schedule is invoked again.
func (s *Scheduler) AddNode(n Node) error {
	if _, ok := s.queues[n.ID()]; ok {
		return fmt.Errorf("%w: node %s added twice", ErrInvariant, n.ID())
	}
	s.nodes = append(s.nodes, n)
	s.queues[n.ID()] = nil
	s.logger.Debug("node added", "node", n.ID(), "nodes", len(s.nodes))
	return nil
}

// Schedule performs the initial distribution of the collection.
//
// Precondition: every registered node has reported its collection to the
// registry. If the initial distribution already happened, Schedule degrades
// to a replenishment check on every node, which onboards nodes that joined
// after the run started.
//
// On the first call it verifies all nodes reported identical collections
// (ErrCollectionMismatch otherwise, with nothing assigned), adopts the
// agreed collection, fills the pending set with [0, N), and distributes the
// policy's initial batch one item at a time in round-robin order starting at
// the first node. If that exhausts the pending set, every node is shut down
// immediately since no further items will ever arrive.
func (s *Scheduler) Schedule() error {
	if s.collection != nil {
		for _, n := range s.nodes {
			if err := s.CheckSchedule(n, 0); err != nil {
				return err
			}
		}
		return nil
	}

	if len(s.nodes) == 0 {
		return fmt.Errorf("%w: schedule with no registered nodes", ErrInvariant)
	}

	collection, err := s.agreedCollection()
	if err != nil {
		s.logger.Error("different tests collected, aborting run", "error", err)
		return err
	}

	s.collection = append(make([]string, 0, len(collection)), collection...)
	s.pending = make([]int, len(s.collection))
	for i := range s.pending {
		s.pending[i] = i
	}
	s.logger.Info("collection agreed", "items", len(s.collection), "nodes", len(s.nodes))

	// Empty collection: nothing to schedule and nothing to drain.
	if len(s.collection) == 0 {
		return nil
	}

	return s.apply(s.planInitial())
}

// CheckSchedule re-evaluates one node after it reported progress (or was
// just onboarded, with lastDuration zero): top its queue up, withhold, or —
// once pending is empty — send the one-shot shutdown signal. Calling it on a
// draining node is a no-op.
func (s *Scheduler) CheckSchedule(n Node, lastDuration time.Duration) error {
	queue, ok := s.queues[n.ID()]
	if !ok {
		return fmt.Errorf("%w: unknown node %s", ErrInvariant, n.ID())
	}
	if n.IsDraining() {
		return nil
	}

	if len(s.pending) == 0 {
		return s.apply(plan{shutdowns: []Node{n}})
	}

	num := s.policy.Replenish(len(queue), lastDuration, len(s.pending), len(s.nodes))
	if num <= 0 {
		s.logger.Debug("replenishment withheld",
			"node", n.ID(), "queue_len", len(queue), "last_duration", lastDuration)
		return nil
	}
	if num > len(s.pending) {
		num = len(s.pending)
	}
	return s.apply(plan{
		take:        num,
		assignments: []assignment{{node: n, indices: clone(s.pending[:num])}},
	})
}

// ItemCompleted handles a node's report that one item finished executing:
// the index leaves the node's queue for good (completed items never return
// to pending) and the node is immediately re-evaluated with the reported
// duration as the heuristic input.
func (s *Scheduler) ItemCompleted(n Node, index int, duration time.Duration) error {
	queue, ok := s.queues[n.ID()]
	if !ok {
		return fmt.Errorf("%w: unknown node %s", ErrInvariant, n.ID())
	}
	if index < 0 || index >= len(s.collection) {
		return fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvariant, index, len(s.collection))
	}

	pos := -1
	for i, v := range queue {
		if v == index {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("%w: item %d completed on node %s but was not assigned to it",
			ErrInvariant, index, n.ID())
	}
	s.queues[n.ID()] = append(queue[:pos], queue[pos+1:]...)
	s.completed++

	return s.CheckSchedule(n, duration)
}

// Initialized reports whether the initial distribution has happened.
func (s *Scheduler) Initialized() bool { return s.collection != nil }

// Collection returns the authoritative test collection, nil before agreement.
func (s *Scheduler) Collection() []string { return s.collection }

// PendingCount returns the number of items not yet assigned to any node.
func (s *Scheduler) PendingCount() int { return len(s.pending) }

// CompletedCount returns the number of items reported complete.
func (s *Scheduler) CompletedCount() int { return s.completed }

// QueueLen returns the assigned-but-incomplete count for a node.
func (s *Scheduler) QueueLen(nodeID string) int { return len(s.queues[nodeID]) }

// NodeCount returns the number of registered nodes.
func (s *Scheduler) NodeCount() int { return len(s.nodes) }

// agreedCollection verifies all nodes reported identical collections and
// returns the agreed one.
func (s *Scheduler) agreedCollection() ([]string, error) {
	first, ok := s.registry.Collection(s.nodes[0].ID())
	if !ok {
		return nil, fmt.Errorf("%w: node %s has not reported a collection", ErrInvariant, s.nodes[0].ID())
	}
	for _, n := range s.nodes[1:] {
		col, ok := s.registry.Collection(n.ID())
		if !ok {
			return nil, fmt.Errorf("%w: node %s has not reported a collection", ErrInvariant, n.ID())
		}
		if len(col) != len(first) {
			return nil, fmt.Errorf("%w: node %s collected %d items, node %s collected %d",
				ErrCollectionMismatch, s.nodes[0].ID(), len(first), n.ID(), len(col))
		}
		for i := range col {
			if col[i] != first[i] {
				return nil, fmt.Errorf("%w: item %d is %q on node %s but %q on node %s",
					ErrCollectionMismatch, i, first[i], s.nodes[0].ID(), col[i], n.ID())
			}
		}
	}
	return first, nil
}

func clone(indices []int) []int {
	return append(make([]int, 0, len(indices)), indices...)
}
