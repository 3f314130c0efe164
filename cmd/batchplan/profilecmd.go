package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/batchplan/pkg/batchplan/profile"
	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the system profile",
	Long: `Profile measures and prints the capacity readings the planner works
from: core counts, available memory, and the worker spawn cost for each
creation strategy.`,
	RunE: runProfile,
}

func init() {
	rootCmd.AddCommand(profileCmd)
}

func runProfile(cmd *cobra.Command, args []string) error {
	physical, logical := profile.Cores()
	fmt.Printf("cores:   %d physical, %d logical\n", physical, logical)

	mem, err := profile.Default.AvailableMemory()
	if err != nil {
		return err
	}
	fmt.Printf("memory:  %s available\n", humanize.IBytes(uint64(mem)))

	strategies := []types.SpawnStrategy{
		types.StrategyGoroutine,
		types.StrategyWarmPool,
		types.StrategyExec,
	}
	for _, strategy := range strategies {
		cost, _ := profile.Default.SpawnCost(cmd.Context(), strategy)
		fmt.Printf("spawn:   %-10s %s\n", strategy, cost)
	}
	return nil
}
