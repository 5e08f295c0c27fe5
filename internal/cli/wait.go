package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/me/tdist/pkg/model"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newWaitCmd() *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait for the current run to finish, showing progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deadline := time.Now().Add(timeout)

			var bar *progressbar.ProgressBar
			for {
				summary, err := client.RunStatus()
				if err != nil {
					return fmt.Errorf("get run: %w", err)
				}
				run := summary.Run

				// The bar appears once the total is known, i.e. after
				// collection finished.
				if bar == nil && run.Total > 0 {
					bar = newProgressBar(run.Total)
				}
				if bar != nil {
					bar.Set(run.Completed)
				}

				if run.State.IsTerminal() {
					fmt.Println()
					return printVerdict(run)
				}
				if timeout > 0 && time.Now().After(deadline) {
					return fmt.Errorf("run %s still %s after %s", run.ID, run.State, timeout)
				}
				time.Sleep(interval)
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Poll interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long (0 = wait forever)")
	return cmd
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.CyanString("Running tests")),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// printVerdict prints the final state and returns a non-nil error for
// anything but a pass, so the exit code reflects the run.
func printVerdict(run model.Run) error {
	switch run.State {
	case model.RunStatePassed:
		color.Green("✓ Run %s passed (%d items)", run.ID, run.Completed)
		return nil
	case model.RunStateFailed:
		color.Red("✗ Run %s failed (%d of %d items failed)", run.ID, run.Failed, run.Total)
		return fmt.Errorf("run failed")
	case model.RunStateAborted:
		color.Red("✗ Run %s aborted", run.ID)
		return fmt.Errorf("run aborted")
	default:
		return fmt.Errorf("run %s ended in unexpected state %s", run.ID, run.State)
	}
}
