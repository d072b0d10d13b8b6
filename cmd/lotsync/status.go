package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusRuns int

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Display inventory counts and recent sync runs",
		Long: `Display the current inventory broken down by source, the number of sold
vehicles, and the most recent sync runs with their outcomes.`,
		Example: `  lotsync status
  lotsync status --runs 20`,
		RunE: statusRun,
	}

	cmd.Flags().IntVar(&statusRuns, "runs", 10, "number of recent sync runs to show")

	return cmd
}

func statusRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("store not initialized")
	}

	stats, err := globalStore.SourceStats()
	if err != nil {
		return fmt.Errorf("failed to read source stats: %w", err)
	}

	sold, err := globalStore.CountSold("")
	if err != nil {
		return fmt.Errorf("failed to count sold vehicles: %w", err)
	}

	fmt.Println("=== INVENTORY ===")
	if len(stats) == 0 {
		fmt.Println("(empty)")
	}
	for _, st := range stats {
		fmt.Printf("%-8s %d\n", st.Source+":", st.Count)
	}
	fmt.Printf("%-8s %d\n", "sold:", sold)

	runs, err := globalStore.ListSyncRuns(statusRuns)
	if err != nil {
		return fmt.Errorf("failed to list sync runs: %w", err)
	}

	fmt.Println("\n=== RECENT SYNC RUNS ===")
	if len(runs) == 0 {
		fmt.Println("(none)")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  offset=%-5d status=%-8s created=%d updated=%d skipped=%d errors=%d sold=%d\n",
			run.StartTime.Format("2006-01-02 15:04:05"),
			run.Offset, run.Status,
			run.Created, run.Updated, run.Skipped, run.Errors, run.MarkedSold,
		)
		if run.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", run.ErrorMessage)
		}
	}

	return nil
}
