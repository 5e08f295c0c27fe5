package model

// RegisterRequest is sent by a worker to join the run.
type RegisterRequest struct {
	Name     string `json:"name"`
	Hostname string `json:"hostname"`
}

// CollectionReport carries the ordered test IDs a node discovered.
type CollectionReport struct {
	TestIDs []string `json:"test_ids"`
}

// WorkOrder is what a node receives when it polls for work: zero or more
// item indices, and optionally the one-shot shutdown signal. Indices refer
// to the node's own reported collection order.
type WorkOrder struct {
	Indices  []int    `json:"indices"`
	TestIDs  []string `json:"test_ids"`
	Shutdown bool     `json:"shutdown"`
}

// CompletionReport is sent by a node when one item finishes executing.
type CompletionReport struct {
	Index      int     `json:"index"`
	Outcome    Outcome `json:"outcome"`
	DurationMs int64   `json:"duration_ms"`
	Output     string  `json:"output,omitempty"`
}

// RunSummary aggregates a finished (or in-flight) run for status endpoints.
type RunSummary struct {
	Run     Run          `json:"run"`
	Nodes   []NodeInfo   `json:"nodes"`
	Results []ItemResult `json:"results,omitempty"`
}
