package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/me/tdist/pkg/model"
)

// maxOutputBytes caps the captured output carried in completion reports.
const maxOutputBytes = 64 << 10

// Executor runs one test item at a time through the configured command
// template. Every "{id}" in the template is replaced with the
// shell-quoted test ID, and the result is run via sh -c.
type Executor struct {
	runCommand string
	logger     *slog.Logger
}

// NewExecutor creates an executor for the given command template.
func NewExecutor(runCommand string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{
		runCommand: runCommand,
		logger:     logger.With("component", "executor"),
	}
}

// Run executes one item and returns the outcome, the wall-clock duration,
// and the combined output (truncated). Exit code zero is a pass, any
// other exit code a failure. Failure to start the command at all is
// reported as errored.
func (e *Executor) Run(ctx context.Context, testID string) (model.Outcome, time.Duration, string) {
	command := strings.ReplaceAll(e.runCommand, "{id}", shellQuote(testID))

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	output := buf.String()
	if len(output) > maxOutputBytes {
		output = output[:maxOutputBytes]
	}

	switch {
	case err == nil:
		return model.OutcomePassed, duration, output
	case isExitError(err):
		return model.OutcomeFailed, duration, output
	default:
		e.logger.Error("item could not be executed", "test_id", testID, "error", err)
		return model.OutcomeErrored, duration, output
	}
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// shellQuote wraps s in single quotes, escaping embedded single quotes,
// so test IDs with shell metacharacters survive sh -c.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
