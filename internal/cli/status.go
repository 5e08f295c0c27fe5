package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/me/tdist/pkg/model"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := client.RunStatus()
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}

			run := summary.Run
			fmt.Printf("Run: %s\n", run.ID)
			fmt.Printf("  State:     %s\n", colorState(run.State))
			fmt.Printf("  Progress:  %d/%d", run.Completed, run.Total)
			if run.Failed > 0 {
				fmt.Printf("  (%s)", color.RedString("%d failed", run.Failed))
			}
			fmt.Println()
			fmt.Printf("  Started:   %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
			if run.CompletedAt != nil {
				fmt.Printf("  Completed: %s\n", run.CompletedAt.Format("2006-01-02 15:04:05"))
			}

			if len(summary.Nodes) > 0 {
				fmt.Println("  Nodes:")
				for _, n := range summary.Nodes {
					fmt.Printf("    - %s (%s): %s, queue %d, completed %d\n",
						n.Name, n.ID, n.State, n.QueueLen, n.Completed)
				}
			}
			return nil
		},
	}
}

// colorState renders a run state with terminal colors.
func colorState(state model.RunState) string {
	switch state {
	case model.RunStatePassed:
		return color.GreenString(string(state))
	case model.RunStateFailed, model.RunStateAborted:
		return color.RedString(string(state))
	case model.RunStateRunning:
		return color.CyanString(string(state))
	default:
		return string(state)
	}
}
