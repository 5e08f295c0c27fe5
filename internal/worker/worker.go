// Package worker implements the tdist worker process: it discovers the
// test collection, registers with the server, then polls for item
// indices, executes them, and reports durations back.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/me/tdist/internal/config"
	"github.com/me/tdist/internal/discovery"
	"github.com/me/tdist/pkg/model"
)

// Worker is the core work loop.
type Worker struct {
	client    *Client
	collector *discovery.Collector
	executor  *Executor
	name      string
	hostname  string
	poll      time.Duration
	logger    *slog.Logger

	collection []string
}

// New creates a Worker from configuration.
func New(cfg config.WorkerConfig, logger *slog.Logger) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}

	collector, err := discovery.New(cfg.ListCommand, cfg.Filter, logger)
	if err != nil {
		return nil, err
	}

	return &Worker{
		client:    NewClient(cfg.ServerURL),
		collector: collector,
		executor:  NewExecutor(cfg.RunCommand, logger),
		name:      name,
		hostname:  hostname,
		poll:      cfg.PollInterval,
		logger:    logger.With("component", "worker"),
	}, nil
}

// Run executes the worker lifecycle: collect, register, report the
// collection, then poll for work until the server signals shutdown and
// the last delivered item has been reported. Returns nil on a clean
// drain, the context error on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	collection, err := w.collector.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	w.collection = collection

	info, err := w.client.Register(ctx, w.name, w.hostname)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	w.logger.Info("registered with server",
		"node_id", info.ID,
		"name", info.Name,
		"items", len(collection),
	)

	if err := w.client.ReportCollection(ctx, collection); err != nil {
		return err
	}

	return w.pollLoop(ctx)
}

// pollLoop drains work orders until shutdown. Items are executed in the
// order they arrive; each completion is reported immediately so the
// server can refill the queue while the next item runs.
func (w *Worker) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	var draining bool
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("cancelled, exiting")
			return ctx.Err()

		case <-ticker.C:
			order, err := w.client.Poll(ctx)
			if err != nil {
				w.logger.Warn("poll failed", "error", err)
				continue
			}

			if order == nil {
				if draining {
					w.logger.Info("drained, exiting")
					return nil
				}
				continue
			}

			if order.Shutdown && !draining {
				draining = true
				w.logger.Info("shutdown signal received", "remaining", len(order.Indices))
			}

			for i, idx := range order.Indices {
				if i >= len(order.TestIDs) {
					w.logger.Warn("work order missing test ID, skipping item", "index", idx)
					continue
				}
				if err := w.runItem(ctx, idx, order.TestIDs[i]); err != nil {
					return err
				}
			}

			// A shutdown order with no items means nothing is left to run.
			if order.Shutdown && len(order.Indices) == 0 {
				w.logger.Info("drained, exiting")
				return nil
			}
		}
	}
}

// runItem executes one test item and reports its result.
func (w *Worker) runItem(ctx context.Context, index int, testID string) error {
	w.logger.Debug("executing item", "index", index, "test_id", testID)

	outcome, duration, output := w.executor.Run(ctx, testID)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	report := model.CompletionReport{
		Index:      index,
		Outcome:    outcome,
		DurationMs: duration.Milliseconds(),
		Output:     output,
	}
	if err := w.client.ReportComplete(ctx, report); err != nil {
		return fmt.Errorf("report item %d: %w", index, err)
	}

	w.logger.Info("item completed",
		"index", index,
		"test_id", testID,
		"outcome", outcome,
		"duration", duration,
	)
	return nil
}
