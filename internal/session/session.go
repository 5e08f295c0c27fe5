// Package session is the event-dispatch layer around the scheduling core.
// All scheduler operations run on a single goroutine consuming an event
// channel, which gives the core the synchronous, one-at-a-time discipline it
// assumes without any locking inside it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/tdist/internal/node"
	"github.com/me/tdist/internal/sched"
	"github.com/me/tdist/internal/store"
	"github.com/me/tdist/pkg/model"
)

// Config holds session configuration.
type Config struct {
	// ExpectedNodes is how many workers must register and report their
	// collection before distribution starts. Further nodes may still join
	// later and are onboarded mid-run.
	ExpectedNodes int
	// Policy selects the load-balancing policy: "bounded-queue" (default)
	// or "classic".
	Policy string
	Sched  sched.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ExpectedNodes: 1,
		Policy:        "bounded-queue",
		Sched:         sched.DefaultConfig(),
	}
}

type eventKind int

const (
	evNodeJoined eventKind = iota
	evCollectionReported
	evItemCompleted
)

type event struct {
	kind       eventKind
	node       *node.Remote
	testIDs    []string
	completion model.CompletionReport
}

// registry collects per-node reported collections. Written and read only on
// the session goroutine; it backs the scheduler's collection-agreement check.
type registry map[string][]string

func (r registry) Collection(nodeID string) ([]string, bool) {
	col, ok := r[nodeID]
	return col, ok
}

// Session coordinates one distributed test run: it tracks node registration
// and collection reports, fires the scheduler on the two triggering events,
// records results, and finalizes the run.
type Session struct {
	config Config
	logger *slog.Logger
	store  store.Store
	sched  *sched.Scheduler
	reg    registry // session-goroutine only

	events    chan event
	done      chan struct{}
	closeDone sync.Once

	mu         sync.RWMutex
	run        model.Run
	nodes      map[string]*node.Remote
	order      []*node.Remote
	collection []string // authoritative snapshot for index->ID mapping, set once
}

// New creates a Session. The run starts in the WAITING state; call Run to
// start consuming events.
func New(cfg Config, st store.Store, logger *slog.Logger) *Session {
	if cfg.ExpectedNodes <= 0 {
		cfg.ExpectedNodes = 1
	}
	var policy sched.Policy
	if cfg.Policy == "classic" {
		policy = sched.ClassicPolicy{}
	}
	reg := registry{}
	s := &Session{
		config: cfg,
		logger: logger.With("component", "session"),
		store:  st,
		reg:    reg,
		events: make(chan event, 256),
		done:   make(chan struct{}),
		nodes:  make(map[string]*node.Remote),
		run: model.Run{
			ID:        "run_" + uuid.New().String()[:8],
			State:     model.RunStateWaiting,
			StartedAt: time.Now().UTC(),
		},
	}
	s.sched = sched.New(reg, cfg.Sched, policy, logger)
	return s
}

// RunID returns the identifier of the run this session coordinates.
func (s *Session) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run.ID
}

// Done is closed once the run reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run consumes events until ctx is cancelled. Events arriving after the run
// finished (late polls from draining workers aside, which never reach this
// loop) are ignored rather than dropped mid-queue.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("session started",
		"run_id", s.RunID(),
		"expected_nodes", s.config.ExpectedNodes,
		"policy", s.config.Policy,
	)
	if err := s.store.CreateRun(ctx, s.snapshotRun()); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session stopping", "run_id", s.RunID())
			// Unblock any handler waiting to submit an event; nothing
			// consumes the channel once this loop exits.
			s.closeDone.Do(func() { close(s.done) })
			return ctx.Err()
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

// submit hands an event to the session goroutine. It refuses instead of
// blocking once the run is over and nothing drains the channel anymore.
func (s *Session) submit(ev event) error {
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return fmt.Errorf("run %s already finished", s.RunID())
	}
}

// Register adds a worker to the run and returns its node handle. Callable
// from any goroutine; the scheduler learns about the node on the session
// goroutine.
func (s *Session) Register(name, hostname string) (*node.Remote, error) {
	s.mu.Lock()
	if s.run.State.IsTerminal() {
		s.mu.Unlock()
		return nil, fmt.Errorf("run %s already finished", s.run.ID)
	}
	remote := node.NewRemote("node_"+uuid.New().String()[:8], name, hostname)
	s.nodes[remote.ID()] = remote
	s.order = append(s.order, remote)
	s.run.Nodes = len(s.order)
	s.mu.Unlock()

	if err := s.submit(event{kind: evNodeJoined, node: remote}); err != nil {
		return nil, err
	}
	return remote, nil
}

// Lookup returns the node handle for an ID, for transport handlers.
func (s *Session) Lookup(nodeID string) (*node.Remote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	remote, ok := s.nodes[nodeID]
	return remote, ok
}

// ReportCollection records the ordered test IDs a node discovered.
func (s *Session) ReportCollection(nodeID string, testIDs []string) error {
	remote, ok := s.Lookup(nodeID)
	if !ok {
		return fmt.Errorf("unknown node %s", nodeID)
	}
	return s.submit(event{kind: evCollectionReported, node: remote, testIDs: testIDs})
}

// ReportCompletion records that one item finished on a node.
func (s *Session) ReportCompletion(nodeID string, report model.CompletionReport) error {
	remote, ok := s.Lookup(nodeID)
	if !ok {
		return fmt.Errorf("unknown node %s", nodeID)
	}
	return s.submit(event{kind: evItemCompleted, node: remote, completion: report})
}

// Poll drains a node's mailbox into a work order. Indices are resolved to
// test IDs against the authoritative collection so workers do not need to
// keep their own copy around.
func (s *Session) Poll(nodeID string) (model.WorkOrder, error) {
	remote, ok := s.Lookup(nodeID)
	if !ok {
		return model.WorkOrder{}, fmt.Errorf("unknown node %s", nodeID)
	}
	indices, shutdown := remote.Drain()

	s.mu.RLock()
	defer s.mu.RUnlock()
	order := model.WorkOrder{Indices: indices, Shutdown: shutdown}
	for _, idx := range indices {
		if idx >= 0 && idx < len(s.collection) {
			order.TestIDs = append(order.TestIDs, s.collection[idx])
		}
	}
	return order, nil
}

// Status snapshots the run and its nodes.
func (s *Session) Status() model.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary := model.RunSummary{Run: s.run}
	for _, remote := range s.order {
		summary.Nodes = append(summary.Nodes, remote.Info())
	}
	return summary
}

// --- session-goroutine event handling ---

func (s *Session) handle(ctx context.Context, ev event) {
	if s.terminal() {
		s.logger.Debug("event after run finished", "kind", int(ev.kind))
		return
	}

	switch ev.kind {
	case evNodeJoined:
		s.nodeJoined(ctx, ev.node)
	case evCollectionReported:
		s.collectionReported(ctx, ev.node, ev.testIDs)
	case evItemCompleted:
		s.itemCompleted(ctx, ev.node, ev.completion)
	}
}

func (s *Session) nodeJoined(ctx context.Context, remote *node.Remote) {
	if err := s.sched.AddNode(remote); err != nil {
		s.logger.Error("add node", "node", remote.ID(), "error", err)
		return
	}
	s.logger.Info("node joined", "node", remote.ID(), "nodes", s.sched.NodeCount())

	if !s.sched.Initialized() && s.sched.NodeCount() >= s.config.ExpectedNodes {
		s.setState(ctx, model.RunStateCollecting)
	}
}

func (s *Session) collectionReported(ctx context.Context, remote *node.Remote, testIDs []string) {
	// A node joining mid-run must match the already-agreed collection;
	// otherwise it is excluded from the run rather than aborting it.
	if s.sched.Initialized() {
		if !equalCollections(testIDs, s.sched.Collection()) {
			s.logger.Error("late node collected different tests, excluding it",
				"node", remote.ID())
			remote.SendShutdown()
			return
		}
		s.reg[remote.ID()] = testIDs
		if err := s.sched.Schedule(); err != nil {
			s.fatal(ctx, err)
		}
		return
	}

	s.reg[remote.ID()] = testIDs
	s.logger.Info("collection reported", "node", remote.ID(), "items", len(testIDs))

	if s.collectionComplete() {
		s.startDistribution(ctx)
	}
}

// collectionComplete reports whether every expected node has registered and
// reported its collection.
func (s *Session) collectionComplete() bool {
	if s.sched.NodeCount() < s.config.ExpectedNodes {
		return false
	}
	return len(s.reg) == s.sched.NodeCount()
}

func (s *Session) startDistribution(ctx context.Context) {
	// Publish the index-to-ID mapping before the scheduler dispatches
	// anything. A worker polling mid-distribution must be able to resolve
	// every index it is handed; on a mismatch the candidate is never used
	// because no indices get dispatched.
	s.mu.Lock()
	for _, remote := range s.order {
		if ids, ok := s.reg[remote.ID()]; ok {
			s.collection = ids
			break
		}
	}
	s.mu.Unlock()

	if err := s.sched.Schedule(); err != nil {
		if errors.Is(err, sched.ErrCollectionMismatch) {
			s.abort(ctx, err)
			return
		}
		s.fatal(ctx, err)
		return
	}

	collection := s.sched.Collection()
	s.mu.Lock()
	s.collection = collection
	s.run.Total = len(collection)
	s.mu.Unlock()

	if len(collection) == 0 {
		s.logger.Info("empty collection, nothing to run")
		s.finish(ctx)
		return
	}
	s.setState(ctx, model.RunStateRunning)
}

func (s *Session) itemCompleted(ctx context.Context, remote *node.Remote, report model.CompletionReport) {
	duration := time.Duration(report.DurationMs) * time.Millisecond
	if err := s.sched.ItemCompleted(remote, report.Index, duration); err != nil {
		// Invariant violations mean scheduler state can no longer be
		// trusted; treat them as fatal for the run.
		s.fatal(ctx, err)
		return
	}
	remote.MarkCompleted()

	s.mu.RLock()
	testID := ""
	if report.Index >= 0 && report.Index < len(s.collection) {
		testID = s.collection[report.Index]
	}
	runID := s.run.ID
	s.mu.RUnlock()

	result := &model.ItemResult{
		RunID:    runID,
		Index:    report.Index,
		TestID:   testID,
		NodeID:   remote.ID(),
		Outcome:  report.Outcome,
		Duration: duration,
		Output:   report.Output,
	}
	if err := s.store.CreateResult(ctx, result); err != nil {
		s.logger.Error("persist result", "run_id", runID, "index", report.Index, "error", err)
	}

	s.mu.Lock()
	s.run.Completed++
	if report.Outcome != model.OutcomePassed {
		s.run.Failed++
	}
	completed, total := s.run.Completed, s.run.Total
	s.mu.Unlock()

	s.logger.Debug("item completed",
		"node", remote.ID(), "index", report.Index, "outcome", report.Outcome,
		"duration", duration, "completed", completed, "total", total)

	if completed == total {
		s.finish(ctx)
	}
}

// finish moves the run to PASSED or FAILED and closes Done.
func (s *Session) finish(ctx context.Context) {
	s.mu.Lock()
	next := model.RunStatePassed
	if s.run.Failed > 0 {
		next = model.RunStateFailed
	}
	now := time.Now().UTC()
	s.run.State = next
	s.run.CompletedAt = &now
	s.mu.Unlock()

	s.persistRun(ctx)
	s.logger.Info("run finished", "run_id", s.RunID(), "state", next)
	s.closeDone.Do(func() { close(s.done) })
}

// abort terminates the run early; every node not already draining is told to
// shut down directly since no further items will be assigned.
func (s *Session) abort(ctx context.Context, cause error) {
	s.logger.Error("aborting run", "run_id", s.RunID(), "error", cause)

	s.mu.Lock()
	now := time.Now().UTC()
	s.run.State = model.RunStateAborted
	s.run.CompletedAt = &now
	nodes := append([]*node.Remote(nil), s.order...)
	s.mu.Unlock()

	for _, remote := range nodes {
		if !remote.IsDraining() {
			remote.SendShutdown()
		}
	}
	s.persistRun(ctx)
	s.closeDone.Do(func() { close(s.done) })
}

// fatal handles invariant violations: the scheduler's bookkeeping can no
// longer be trusted, so the run gets the same teardown as a mismatch.
func (s *Session) fatal(ctx context.Context, cause error) {
	s.abort(ctx, cause)
}

func (s *Session) setState(ctx context.Context, next model.RunState) {
	s.mu.Lock()
	if !s.run.State.CanTransitionTo(next) {
		s.mu.Unlock()
		s.logger.Warn("invalid run transition", "from", s.run.State, "to", next)
		return
	}
	s.run.State = next
	s.mu.Unlock()
	s.persistRun(ctx)
	s.logger.Info("run state", "run_id", s.RunID(), "state", next)
}

func (s *Session) terminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run.State.IsTerminal()
}

func (s *Session) snapshotRun() *model.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run := s.run
	return &run
}

func (s *Session) persistRun(ctx context.Context) {
	if err := s.store.UpdateRun(ctx, s.snapshotRun()); err != nil {
		s.logger.Error("persist run", "run_id", s.RunID(), "error", err)
	}
}

func equalCollections(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
