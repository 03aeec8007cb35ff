package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-harvester/internal/harvest"
)

// errRestartFailed is returned when no candidate came back healthy.
var errRestartFailed = errors.New("could not restart the extraction service")

func newRestartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restarts the extraction service container by hand",
		Long: `Checks the extraction service and, if it is down (or --force is set),
restarts each candidate container in turn until one becomes healthy.`,
		RunE: runRestartCommand,
	}
	cmd.Flags().Bool("force", false, "restart even when the service is healthy")
	cmd.Flags().Duration("poll-interval", time.Second, "time between health checks after a restart")
	cmd.Flags().Int("poll-attempts", 60, "health checks after a restart before giving up on a candidate")
	return cmd
}

func runRestartCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")
	interval, _ := cmd.Flags().GetDuration("poll-interval")
	attempts, _ := cmd.Flags().GetInt("poll-attempts")

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	logger := appInstance.Logger()
	prober := appInstance.Prober()
	lc := appInstance.Lifecycle()

	if prober.Probe(ctx) == harvest.Responsive && !force {
		fmt.Fprintln(out, "extraction service is healthy; use --force to restart anyway")
		return nil
	}

	budget := harvest.PollBudget{Interval: interval, Attempts: attempts}
	for _, name := range lc.Candidates() {
		if err := lc.Restart(ctx, name); err != nil {
			logger.Warn("restart failed", zap.String("unit", name), zap.Error(err))
			continue
		}
		if harvest.WaitHealthy(ctx, prober, budget, logger) {
			fmt.Fprintf(out, "extraction service restarted via %s\n", name)
			return nil
		}
		logger.Warn("restarted container did not become healthy", zap.String("unit", name))
	}

	fmt.Fprintln(out, "automatic restart failed. Restart the service by hand, for example:")
	for _, name := range lc.Candidates() {
		fmt.Fprintf(out, "  docker restart %s\n", name)
	}
	fmt.Fprintln(out, "or start a fresh one: docker run -d -p 11235:11235 --name crawl4ai unclecode/crawl4ai:latest")
	return errRestartFailed
}
