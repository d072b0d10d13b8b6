package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dealerworks/lotsync/internal/store"
)

var (
	purgeSource string
	purgeYes    bool
)

func newPurgeSoldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge-sold",
		Short: "Permanently delete sold vehicles",
		Long: `Permanently delete vehicles that have been flagged as sold. This is the
only operation that hard-deletes inventory rows; the sync process itself
only flags vehicles, so a purge is always an explicit administrative step.`,
		Example: `  lotsync purge-sold
  lotsync purge-sold --source manual
  lotsync purge-sold --yes`,
		RunE: purgeSoldRun,
	}

	cmd.Flags().StringVar(&purgeSource, "source", store.SourceFeed, "vehicle source to purge (feed or manual)")
	cmd.Flags().BoolVar(&purgeYes, "yes", false, "skip the confirmation prompt")

	return cmd
}

func purgeSoldRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalStore == nil {
		return fmt.Errorf("store not initialized")
	}
	if purgeSource != store.SourceFeed && purgeSource != store.SourceManual {
		return fmt.Errorf("source must be '%s' or '%s'", store.SourceFeed, store.SourceManual)
	}

	count, err := globalStore.CountSold(purgeSource)
	if err != nil {
		return fmt.Errorf("failed to count sold vehicles: %w", err)
	}
	if count == 0 {
		fmt.Printf("No sold vehicles with source '%s'.\n", purgeSource)
		return nil
	}

	if !purgeYes {
		fmt.Printf("This will permanently delete %d sold vehicle(s) with source '%s'. Continue? [y/N] ", count, purgeSource)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted, err := globalStore.PurgeSold(purgeSource)
	if err != nil {
		return fmt.Errorf("failed to purge sold vehicles: %w", err)
	}

	log.Info("purged sold vehicles", "source", purgeSource, "deleted", deleted)
	fmt.Printf("Deleted %d vehicle(s).\n", deleted)
	return nil
}
