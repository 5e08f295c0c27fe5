package sched

import "errors"

var (
	// ErrCollectionMismatch is returned by Schedule when registered nodes
	// reported different test collections. It is fatal: no items are
	// assigned and the caller is expected to abort the run.
	ErrCollectionMismatch = errors.New("nodes collected different test items")

	// ErrInvariant marks a scheduler invariant violation: an unknown node,
	// an out-of-range index, an item completed that was never assigned, or
	// a queue growing past its bound. These indicate a logic bug rather
	// than a runtime condition and are not recoverable.
	ErrInvariant = errors.New("scheduler invariant violated")
)
