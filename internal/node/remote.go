// Package node holds the controller-side handle on a worker. It keeps the
// transport out of the scheduling core: the scheduler fire-and-forgets item
// dispatches and the shutdown signal into a Remote, and the worker's HTTP
// polls drain them.
package node

import (
	"sync"
	"time"

	"github.com/me/tdist/pkg/model"
)

// Remote is one registered worker as the controller sees it. It implements
// sched.Node. Dispatches land in a mailbox read by the worker's next poll;
// the draining flag is set exactly once and never cleared.
type Remote struct {
	id       string
	name     string
	hostname string

	mu        sync.Mutex
	mailbox   []int
	draining  bool
	assigned  int
	completed int
	lastSeen  time.Time

	registeredAt time.Time
}

// NewRemote creates a handle for a freshly registered worker.
func NewRemote(id, name, hostname string) *Remote {
	now := time.Now().UTC()
	return &Remote{
		id:           id,
		name:         name,
		hostname:     hostname,
		lastSeen:     now,
		registeredAt: now,
	}
}

// ID returns the node's unique identifier.
func (r *Remote) ID() string { return r.id }

// IsDraining reports whether the shutdown signal has been sent.
func (r *Remote) IsDraining() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draining
}

// SendShutdown marks the node draining. The worker learns about it on its
// next poll, after any already-mailed items. Repeat calls are no-ops.
func (r *Remote) SendShutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draining = true
}

// DispatchItems appends item indices to the mailbox. Fire-and-forget: the
// caller does not learn when (or whether) the worker picks them up.
func (r *Remote) DispatchItems(indices []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mailbox = append(r.mailbox, indices...)
	r.assigned += len(indices)
}

// Drain empties the mailbox and returns its contents along with the draining
// flag. Called from the worker's poll handler; send order is preserved.
func (r *Remote) Drain() (indices []int, shutdown bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	indices = r.mailbox
	r.mailbox = nil
	r.lastSeen = time.Now().UTC()
	return indices, r.draining
}

// MarkCompleted bumps the node's completed-item counter.
func (r *Remote) MarkCompleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	r.lastSeen = time.Now().UTC()
}

// Info snapshots the node for status endpoints. The queue length mirrors the
// scheduler's assigned-but-incomplete count: dispatched minus completed.
func (r *Remote) Info() model.NodeInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := model.NodeStateOnline
	if r.draining {
		state = model.NodeStateDraining
	}
	return model.NodeInfo{
		ID:           r.id,
		Name:         r.name,
		Hostname:     r.hostname,
		State:        state,
		QueueLen:     r.assigned - r.completed,
		Completed:    r.completed,
		RegisteredAt: r.registeredAt,
		LastSeen:     r.lastSeen,
	}
}
