package cmd

import (
	"fmt"

	"github.com/encodeous/overmesh/state"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan [memory MB]",
	Short: "Print the routing table layout for a memory budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var mb int
		if _, err := fmt.Sscan(args[0], &mb); err != nil {
			return fmt.Errorf("invalid memory budget %q: %w", args[0], err)
		}
		sz, err := state.PlanTables(mb)
		if err != nil {
			return err
		}
		fmt.Printf("bins:               %d\n", sz.Bins)
		fmt.Printf("associativity:      %d\n", sz.Associativity)
		fmt.Printf("node slots:         %d\n", sz.Bins*sz.Associativity)
		fmt.Printf("bin bytes:          %d\n", sz.BinBytes)
		fmt.Printf("neighbour slots:    %d\n", sz.NeighbourCapacity-1)
		fmt.Printf("bytes:              %d\n", sz.Bytes)
		return nil
	},
	GroupID: "om",
}

func init() {
	rootCmd.AddCommand(planCmd)
}
