package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/me/tdist/pkg/model"
	"github.com/spf13/cobra"
)

func newResultsCmd() *cobra.Command {
	var (
		failedOnly bool
		showOutput bool
		runID      string
	)

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show per-item results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var results []model.ItemResult
			var err error
			if runID != "" {
				var summary *model.RunSummary
				summary, err = client.GetRun(runID)
				if err == nil {
					results = summary.Results
				}
			} else {
				results, err = client.Results()
			}
			if err != nil {
				return fmt.Errorf("get results: %w", err)
			}

			if len(results) == 0 {
				fmt.Println("No results recorded.")
				return nil
			}

			var failed int
			for _, res := range results {
				if res.Outcome != model.OutcomePassed {
					failed++
				}
				if failedOnly && res.Outcome == model.OutcomePassed {
					continue
				}
				fmt.Printf("%s  %-10s  %s  (%s)\n",
					outcomeMark(res.Outcome), res.Outcome, res.TestID,
					res.Duration.Round(time.Millisecond))
				if showOutput && res.Output != "" {
					fmt.Println(indent(res.Output, "    "))
				}
			}

			fmt.Println()
			if failed == 0 {
				color.Green("✓ %d items, all passed", len(results))
			} else {
				color.Red("✗ %d items, %d failed", len(results), failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Show only failed items")
	cmd.Flags().BoolVar(&showOutput, "output", false, "Include captured test output")
	cmd.Flags().StringVar(&runID, "run", "", "Show a stored run instead of the current one")
	return cmd
}

func outcomeMark(outcome model.Outcome) string {
	switch outcome {
	case model.OutcomePassed:
		return color.GreenString("✓")
	case model.OutcomeFailed:
		return color.RedString("✗")
	default:
		return color.YellowString("!")
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
