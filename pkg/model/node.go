package model

import "time"

// NodeInfo describes a worker node as seen by the controller.
type NodeInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Hostname     string    `json:"hostname"`
	State        NodeState `json:"state"`
	QueueLen     int       `json:"queue_len"`
	Completed    int       `json:"completed"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

// NodeState represents the lifecycle state of a worker node.
type NodeState string

const (
	NodeStateOnline NodeState = "online"
	// NodeStateDraining means the node has received the shutdown signal
	// and will exit once its queue empties. Irreversible.
	NodeStateDraining NodeState = "draining"
	NodeStateOffline  NodeState = "offline"
)

// ValidNodeTransitions defines the allowed state transitions for nodes.
var ValidNodeTransitions = map[NodeState][]NodeState{
	NodeStateOnline:   {NodeStateDraining, NodeStateOffline},
	NodeStateDraining: {NodeStateOffline},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s NodeState) CanTransitionTo(next NodeState) bool {
	for _, allowed := range ValidNodeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
