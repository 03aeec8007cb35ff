package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newHarvestCmd creates the 'harvest' subcommand, the batch run itself.
func newHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Runs the batch harvest over the sitemap index",
		Long: `Walks the sitemap index page by page and extracts every listed URL through
the extraction service, in batches with health checks, retries, preventive
restarts and crash recovery. Exits non-zero when the run aborts.`,
		RunE: runHarvestCommand,
	}
	cmd.Flags().Int("start-page", 1, "first index page to process (overrides index.start_page)")
	cmd.Flags().Int("max-pages", 10, "last index page to process (overrides index.max_page)")
	return cmd
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	summary, err := appInstance.Harvest(cmd.Context())
	logger.Info("harvest finished",
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)),
		zap.Int("processed", summary.TotalProcessed),
		zap.Int("failed", summary.Failed),
		zap.Int("recoveries", summary.Recoveries),
		zap.Int("pages", summary.PagesVisited),
		zap.Duration("elapsed", summary.Duration()),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "run %s %s: %d processed, %d failed, %d recoveries, %d pages\n",
		summary.RunID, summary.Status, summary.TotalProcessed, summary.Failed, summary.Recoveries, summary.PagesVisited)
	if err != nil {
		return fmt.Errorf("harvest aborted: %w", err)
	}
	return nil
}
