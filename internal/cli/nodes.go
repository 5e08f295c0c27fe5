package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List registered worker nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := client.Nodes()
			if err != nil {
				return fmt.Errorf("list nodes: %w", err)
			}

			if len(nodes) == 0 {
				fmt.Println("No nodes registered.")
				return nil
			}

			fmt.Printf("%-14s  %-20s  %-10s  %-6s  %s\n", "ID", "NAME", "STATE", "QUEUE", "COMPLETED")
			fmt.Printf("%-14s  %-20s  %-10s  %-6s  %s\n", "--", "----", "-----", "-----", "---------")
			for _, n := range nodes {
				fmt.Printf("%-14s  %-20s  %-10s  %-6d  %d\n",
					n.ID, n.Name, n.State, n.QueueLen, n.Completed)
			}
			return nil
		},
	}
}
