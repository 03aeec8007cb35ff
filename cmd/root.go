// Package cmd defines and implements the CLI commands for the sitemap-harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-harvester/internal/app"
	"github.com/JakeFAU/sitemap-harvester/internal/config"
	"github.com/JakeFAU/sitemap-harvester/internal/harvest"
	"github.com/JakeFAU/sitemap-harvester/internal/lifecycle"
	"github.com/JakeFAU/sitemap-harvester/internal/logging"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
type App interface {
	Close()
	Logger() *zap.Logger
	Prober() harvest.HealthProber
	Lifecycle() *lifecycle.Controller
	Harvest(ctx context.Context) (harvest.Summary, error)
}

// newApp is the application factory. It's a variable so tests can swap in a fake.
var newApp = func(cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(cfg, logger), nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitemap-harvester",
		Short: "Harvests sitemap pages into markdown through an extraction service.",
		Long: `sitemap-harvester walks a paginated sitemap index in batches, sends every
page to a local extraction service and saves the markdown it returns. It
watches the service's health and restarts its container when it hangs or
crashes.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := applyFlagOverrides(cmd, &cfg); err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := newApp(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newRestartCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// applyFlagOverrides copies command-specific flags that shadow config keys.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if f := flags.Lookup("start-page"); f != nil && f.Changed {
		v, err := flags.GetInt("start-page")
		if err != nil {
			return err
		}
		cfg.Index.StartPage = v
	}
	if f := flags.Lookup("max-pages"); f != nil && f.Changed {
		v, err := flags.GetInt("max-pages")
		if err != nil {
			return err
		}
		cfg.Index.MaxPage = v
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the run.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
