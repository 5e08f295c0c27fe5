package model

import "time"

// RunState represents the lifecycle state of a test run.
type RunState string

const (
	// RunStateWaiting means the controller is waiting for the expected
	// number of nodes to register.
	RunStateWaiting RunState = "WAITING"
	// RunStateCollecting means nodes are registered but not all of them
	// have reported their test collection yet.
	RunStateCollecting RunState = "COLLECTING"
	// RunStateRunning means items are being distributed and executed.
	RunStateRunning RunState = "RUNNING"
	// RunStatePassed means every item completed and none failed.
	RunStatePassed RunState = "PASSED"
	// RunStateFailed means every item completed and at least one failed.
	RunStateFailed RunState = "FAILED"
	// RunStateAborted means the run was terminated before completion,
	// e.g. because nodes disagreed on the collection.
	RunStateAborted RunState = "ABORTED"
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	return string(s)
}

// IsTerminal returns true if the run is in a final state.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStatePassed, RunStateFailed, RunStateAborted:
		return true
	}
	return false
}

// ValidRunTransitions defines the allowed state transitions for runs.
var ValidRunTransitions = map[RunState][]RunState{
	RunStateWaiting:    {RunStateCollecting, RunStateAborted},
	RunStateCollecting: {RunStateRunning, RunStatePassed, RunStateAborted},
	RunStateRunning:    {RunStatePassed, RunStateFailed, RunStateAborted},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s RunState) CanTransitionTo(next RunState) bool {
	for _, allowed := range ValidRunTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Run is one distributed execution of a test collection.
type Run struct {
	ID          string     `json:"id"`
	State       RunState   `json:"state"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	Failed      int        `json:"failed"`
	Nodes       int        `json:"nodes"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Outcome is the result of executing one test item.
type Outcome string

const (
	OutcomePassed Outcome = "passed"
	OutcomeFailed Outcome = "failed"
	// OutcomeErrored means the item could not be executed at all
	// (e.g. the test command could not be started).
	OutcomeErrored Outcome = "errored"
)

// ItemResult records the completion of a single test item on a node.
type ItemResult struct {
	RunID    string        `json:"run_id"`
	Index    int           `json:"index"`
	TestID   string        `json:"test_id"`
	NodeID   string        `json:"node_id"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Output   string        `json:"output,omitempty"`
}
