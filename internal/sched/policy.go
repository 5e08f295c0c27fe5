package sched

import "time"

// Policy decides how many items the scheduler hands out, both for the
// initial round-robin distribution and for per-node replenishment. A policy
// is chosen at construction; the scheduler itself stays policy-agnostic.
type Policy interface {
	// Name identifies the policy in logs and status output.
	Name() string

	// InitialBatch returns how many items to distribute round-robin across
	// all nodes when the run starts. The scheduler caps the result at the
	// number of pending items.
	InitialBatch(pending, nodes int) int

	// Replenish returns how many items to send to a node that just reported
	// progress, given its current queue length and the duration of its most
	// recently completed item (zero when not applicable). Returning 0 means
	// the node has enough buffered work, or should be left alone.
	Replenish(queueLen int, lastDuration time.Duration, pending, nodes int) int

	// QueueBound returns the hard per-node queue cap enforced after every
	// assignment, or 0 if the policy does not bound queues.
	QueueBound() int
}

// BoundedQueuePolicy caps every node's queue at a small constant. A node
// working through long-running items can hold at most MaxQueueSize items, so
// fast nodes drain Pending instead of idling while a slow node sits on a
// large backlog. No duration prediction is involved: nodes that finish items
// quickly simply re-enter the replenishment check sooner.
type BoundedQueuePolicy struct {
	MinQueueSize  int
	MaxQueueSize  int
	SlowThreshold time.Duration
}

// NewBoundedQueuePolicy returns the bounded-queue policy with the given
// configuration, falling back to defaults for zero values.
func NewBoundedQueuePolicy(cfg Config) *BoundedQueuePolicy {
	def := DefaultConfig()
	if cfg.MinQueueSize <= 0 {
		cfg.MinQueueSize = def.MinQueueSize
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = def.SlowThreshold
	}
	return &BoundedQueuePolicy{
		MinQueueSize:  cfg.MinQueueSize,
		MaxQueueSize:  cfg.MaxQueueSize,
		SlowThreshold: cfg.SlowThreshold,
	}
}

func (p *BoundedQueuePolicy) Name() string { return "bounded-queue" }

func (p *BoundedQueuePolicy) InitialBatch(pending, nodes int) int {
	return p.MaxQueueSize * nodes
}

func (p *BoundedQueuePolicy) Replenish(queueLen int, lastDuration time.Duration, pending, nodes int) int {
	if queueLen >= p.MinQueueSize {
		return 0
	}
	// The node is working through long-running items and still holds a full
	// queue; wait rather than concentrating more slow work on it. Only
	// reachable when MinQueueSize > MaxQueueSize has been configured.
	if lastDuration >= p.SlowThreshold && queueLen >= p.MaxQueueSize {
		return 0
	}
	return p.MaxQueueSize - queueLen
}

func (p *BoundedQueuePolicy) QueueBound() int { return p.MaxQueueSize }

// ClassicPolicy reproduces the traditional load-scheduling formulae: a large
// initial batch of a quarter of the collection, and per-node queues sized
// relative to the remaining pending items. It balances poorly when item
// durations vary widely, which is what BoundedQueuePolicy exists to fix, but
// it issues fewer replenishment rounds on uniform workloads.
type ClassicPolicy struct{}

func (ClassicPolicy) Name() string { return "classic" }

func (ClassicPolicy) InitialBatch(pending, nodes int) int {
	batch := pending / 4
	if min := 2 * nodes; batch < min {
		batch = min
	}
	return batch
}

func (ClassicPolicy) Replenish(queueLen int, lastDuration time.Duration, pending, nodes int) int {
	if nodes == 0 {
		return 0
	}
	perNodeMin := pending / nodes / 4
	if perNodeMin < 2 {
		perNodeMin = 2
	}
	perNodeMax := pending / nodes / 2
	if perNodeMax < 2 {
		perNodeMax = 2
	}
	if queueLen >= perNodeMin {
		return 0
	}
	return perNodeMax - queueLen
}

func (ClassicPolicy) QueueBound() int { return 0 }
