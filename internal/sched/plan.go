package sched

import "fmt"

// plan is the outcome of one scheduling decision: which indices go to which
// node, and which nodes get the shutdown signal. Decisions are computed
// without side effects and handed to apply, so the policy logic stays
// testable without capturing dispatches or log output.
type plan struct {
	// take is how many indices the plan consumes from the front of pending.
	// It must equal the total across assignments.
	take        int
	assignments []assignment
	shutdowns   []Node
}

// assignment sends a batch of indices to one node, preserving order.
type assignment struct {
	node    Node
	indices []int
}

// planInitial distributes the policy's initial batch one item at a time in
// round-robin order, restarting at the first registered node. If the batch
// covers all of pending, every node is marked for shutdown.
func (s *Scheduler) planInitial() plan {
	batch := s.policy.InitialBatch(len(s.pending), len(s.nodes))
	if batch > len(s.pending) {
		batch = len(s.pending)
	}

	perNode := make([][]int, len(s.nodes))
	next := 0 // explicit round-robin index, modulo node count
	for i := 0; i < batch; i++ {
		perNode[next] = append(perNode[next], s.pending[i])
		next = (next + 1) % len(s.nodes)
	}

	p := plan{take: batch}
	for i, n := range s.nodes {
		if len(perNode[i]) > 0 {
			p.assignments = append(p.assignments, assignment{node: n, indices: perNode[i]})
		}
	}
	if batch == len(s.pending) {
		// Initial distribution sent everything; no further items will ever
		// arrive, so every node starts draining now.
		p.shutdowns = s.nodes
	}
	return p
}

// apply executes a plan: moves indices from pending into node queues,
// dispatches them, signals shutdowns, and emits the diagnostics the decision
// functions deliberately leave out.
func (s *Scheduler) apply(p plan) error {
	taken := 0
	for _, a := range p.assignments {
		queue := s.queues[a.node.ID()]
		if bound := s.policy.QueueBound(); bound > 0 && len(queue)+len(a.indices) > bound {
			return fmt.Errorf("%w: assigning %d items to node %s would exceed queue bound %d (queue %d)",
				ErrInvariant, len(a.indices), a.node.ID(), bound, len(queue))
		}
		s.queues[a.node.ID()] = append(queue, a.indices...)
		taken += len(a.indices)

		a.node.DispatchItems(a.indices)
		s.logger.Debug("items dispatched",
			"node", a.node.ID(), "count", len(a.indices), "queue_len", s.QueueLen(a.node.ID()))
	}
	if taken != p.take {
		return fmt.Errorf("%w: plan assigned %d items but consumed %d from pending", ErrInvariant, taken, p.take)
	}
	s.pending = s.pending[p.take:]

	for _, n := range p.shutdowns {
		// Defensive: the draining check in CheckSchedule already prevents a
		// second signal, and Node.SendShutdown tolerates repeats anyway.
		if n.IsDraining() {
			continue
		}
		n.SendShutdown()
		s.logger.Info("shutdown signalled", "node", n.ID(), "queue_len", s.QueueLen(n.ID()))
	}

	if p.take > 0 {
		s.logger.Debug("pending after apply", "count", len(s.pending))
	}
	return nil
}
