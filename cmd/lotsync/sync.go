package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dealerworks/lotsync/internal/engine"
)

var (
	syncCleanup bool
	syncLimit   int
	syncOffset  int
	syncOnce    bool
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the inventory with the upstream feed",
		Long: `Synchronize the local inventory with the upstream XML feed. The feed is
processed in bounded batches; by default the command pages through the
whole feed until every record has been reconciled.

With --cleanup, vehicles that are no longer present in the feed are
flagged as sold before the first batch. Nothing is ever deleted by sync;
use purge-sold for that.`,
		Example: `  lotsync sync
  lotsync sync --cleanup
  lotsync sync --limit 25
  lotsync sync --offset 100 --once`,
		RunE: syncRun,
	}

	cmd.Flags().BoolVar(&syncCleanup, "cleanup", false, "flag vehicles missing from the feed as sold")
	cmd.Flags().IntVar(&syncLimit, "limit", engine.DefaultBatchLimit, "records per batch (1-100)")
	cmd.Flags().IntVar(&syncOffset, "offset", 0, "record offset to start from")
	cmd.Flags().BoolVar(&syncOnce, "once", false, "run a single batch instead of paging to the end")

	return cmd
}

func syncRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalEngine == nil {
		return fmt.Errorf("sync engine not initialized")
	}
	if err := globalCfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if syncLimit < 1 || syncLimit > engine.MaxBatchLimit {
		return fmt.Errorf("limit must be between 1 and %d", engine.MaxBatchLimit)
	}

	ctx := context.Background()
	total := &engine.BatchReport{}

	opts := engine.BatchOptions{
		Offset:      syncOffset,
		Limit:       syncLimit,
		CleanupMode: syncCleanup,
	}

	batches := 0
	for {
		report, err := globalEngine.RunBatch(ctx, opts)
		if err != nil {
			return fmt.Errorf("sync failed at offset %d: %w", opts.Offset, err)
		}
		batches++
		total.Merge(report)

		log.Info("batch finished",
			"offset", report.Offset,
			"processed", report.Processed,
			"total", report.Total,
			"done", report.Done,
		)

		if report.Done || syncOnce {
			break
		}

		// Follow-up batches reuse the session's parsed feed and never
		// repeat the cleanup sweep.
		opts.Offset = report.NextOffset
		opts.SessionID = report.SessionID
		opts.CleanupMode = false
	}

	fmt.Println("\n=== SYNC SUMMARY ===")
	fmt.Printf("Batches:     %d\n", batches)
	fmt.Printf("Feed total:  %d\n", total.Total)
	fmt.Printf("Created:     %d\n", total.Created)
	fmt.Printf("Updated:     %d\n", total.Updated)
	fmt.Printf("Skipped:     %d\n", total.Skipped)
	fmt.Printf("Errors:      %d\n", total.Errors)
	if syncCleanup {
		fmt.Printf("Marked sold: %d\n", total.MarkedSold)
	}

	if total.Errors > 0 {
		fmt.Println("\nLast batch errors:")
		for _, item := range total.Errored {
			if item.Name != "" {
				fmt.Printf("  - SKU %s (%s): %s\n", item.SKU, item.Name, item.Reason)
			} else {
				fmt.Printf("  - SKU %s: %s\n", item.SKU, item.Reason)
			}
		}
		return fmt.Errorf("sync completed with %d errors", total.Errors)
	}

	return nil
}
