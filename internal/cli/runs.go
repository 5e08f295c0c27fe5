package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, pg, err := client.Runs(limit, offset)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			if len(runs) == 0 {
				fmt.Println("No runs found.")
				return nil
			}

			fmt.Printf("%-14s  %-10s  %-10s  %-7s  %s\n", "ID", "STATE", "PROGRESS", "FAILED", "STARTED")
			fmt.Printf("%-14s  %-10s  %-10s  %-7s  %s\n", "--", "-----", "--------", "------", "-------")
			for _, run := range runs {
				fmt.Printf("%-14s  %-10s  %4d/%-5d  %-7d  %s\n",
					run.ID, run.State,
					run.Completed, run.Total, run.Failed,
					run.StartedAt.Format("2006-01-02 15:04:05"))
			}

			if pg != nil && pg.HasMore {
				fmt.Printf("\n(%d of %d shown)\n", len(runs), pg.Total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset into the run history")
	return cmd
}
