// Package discovery collects the test items a worker can run. Items are
// produced by a user-configured list command, one test ID per line, and
// optionally narrowed by a JavaScript filter expression.
//
// Every worker in a run must produce the identical ordered list, so the
// command output is taken as-is apart from whitespace trimming; no
// sorting or dedup happens here.
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// Collector discovers test items by running a shell command.
type Collector struct {
	listCommand string
	filter      *Filter
	logger      *slog.Logger
}

// New creates a collector for the given list command. filterExpr may be
// empty; otherwise it is compiled once up front.
func New(listCommand, filterExpr string, logger *slog.Logger) (*Collector, error) {
	if listCommand == "" {
		return nil, fmt.Errorf("list command is empty")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var filter *Filter
	if filterExpr != "" {
		f, err := CompileFilter(filterExpr)
		if err != nil {
			return nil, fmt.Errorf("compiling filter: %w", err)
		}
		filter = f
	}

	return &Collector{
		listCommand: listCommand,
		filter:      filter,
		logger:      logger.With("component", "discovery"),
	}, nil
}

// Collect runs the list command and returns the ordered test IDs.
func (c *Collector) Collect(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", c.listCommand)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("list command failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	ids := parseLines(stdout.String())
	if c.filter != nil {
		kept := ids[:0]
		for _, id := range ids {
			ok, err := c.filter.Match(id)
			if err != nil {
				return nil, fmt.Errorf("filter %q: %w", id, err)
			}
			if ok {
				kept = append(kept, id)
			}
		}
		c.logger.Debug("filter applied", "collected", len(ids), "kept", len(kept))
		ids = kept
	}

	c.logger.Info("collection complete", "items", len(ids))
	return ids, nil
}

// parseLines splits command output into test IDs, skipping blank lines.
func parseLines(out string) []string {
	var ids []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	return ids
}
