package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config names the container tool and the candidate container names.
type Config struct {
	Binary          string
	Candidates      []string
	DefaultName     string
	CommandTimeout  time.Duration
	DiscoverTimeout time.Duration
}

// Unit is a container known to the container tool.
type Unit struct {
	Name   string
	Status string
}

// Controller implements harvest.Lifecycle on top of a Runner.
type Controller struct {
	cfg    Config
	runner Runner
	logger *zap.Logger
}

// NewController builds a Controller. Zero fields in cfg take the defaults of
// the stock extraction service deployment.
func NewController(cfg Config, runner Runner, logger *zap.Logger) *Controller {
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	if len(cfg.Candidates) == 0 {
		cfg.Candidates = []string{"crawl4ai", "crawl4ai-server", "crawl4ai_server"}
	}
	if cfg.DefaultName == "" {
		cfg.DefaultName = cfg.Candidates[0]
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if cfg.DiscoverTimeout <= 0 {
		cfg.DiscoverTimeout = 10 * time.Second
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, runner: runner, logger: logger}
}

// Candidates returns the names Discover tries, in order.
func (c *Controller) Candidates() []string {
	return append([]string(nil), c.cfg.Candidates...)
}

// Discover returns the first candidate the container tool knows about, or
// the default name when none match or the tool cannot be queried.
func (c *Controller) Discover(ctx context.Context) string {
	for _, name := range c.cfg.Candidates {
		res, err := c.runner.Run(ctx, c.cfg.DiscoverTimeout, c.cfg.Binary,
			"ps", "-a", "--filter", "name="+name, "--format", "{{.Names}}")
		if err != nil {
			c.logger.Debug("discovery query failed", zap.String("candidate", name), zap.Error(err))
			continue
		}
		if res.ExitCode != 0 {
			continue
		}
		// The name filter matches substrings; only an exact line counts.
		for _, line := range strings.Split(res.Stdout, "\n") {
			if strings.TrimSpace(line) == name {
				c.logger.Info("found extraction service container", zap.String("unit", name))
				return name
			}
		}
	}
	c.logger.Warn("could not find extraction service container; using default", zap.String("unit", c.cfg.DefaultName))
	return c.cfg.DefaultName
}

// Stop stops the named container. A non-zero exit is logged and tolerated:
// the tool reports errors for containers that are already stopped.
func (c *Controller) Stop(ctx context.Context, name string) error {
	c.logger.Info("stopping container", zap.String("unit", name))
	res, err := c.runner.Run(ctx, c.cfg.CommandTimeout, c.cfg.Binary, "stop", name)
	if err != nil {
		return fmt.Errorf("stop %s: %w", name, err)
	}
	if res.ExitCode != 0 {
		c.logger.Warn("stop exited non-zero; treating as stopped",
			zap.String("unit", name),
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", strings.TrimSpace(res.Stderr)),
		)
		return nil
	}
	c.logger.Info("container stopped", zap.String("unit", name))
	return nil
}

// Start starts the named container.
func (c *Controller) Start(ctx context.Context, name string) error {
	c.logger.Info("starting container", zap.String("unit", name))
	return c.expectZero(ctx, "start", name)
}

// Restart restarts the named container in one command.
func (c *Controller) Restart(ctx context.Context, name string) error {
	c.logger.Info("restarting container", zap.String("unit", name))
	return c.expectZero(ctx, "restart", name)
}

func (c *Controller) expectZero(ctx context.Context, verb, name string) error {
	res, err := c.runner.Run(ctx, c.cfg.CommandTimeout, c.cfg.Binary, verb, name)
	if err != nil {
		return fmt.Errorf("%s %s: %w", verb, name, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s %s: exit code %d: %s", verb, name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	c.logger.Info("container command succeeded", zap.String("verb", verb), zap.String("unit", name))
	return nil
}

// List returns the candidate containers the tool knows about with their status.
func (c *Controller) List(ctx context.Context) ([]Unit, error) {
	res, err := c.runner.Run(ctx, c.cfg.DiscoverTimeout, c.cfg.Binary,
		"ps", "-a", "--format", "{{.Names}}\t{{.Status}}")
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("list containers: exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	wanted := make(map[string]bool, len(c.cfg.Candidates))
	for _, name := range c.cfg.Candidates {
		wanted[name] = true
	}
	var units []Unit
	for _, line := range strings.Split(res.Stdout, "\n") {
		name, status, _ := strings.Cut(strings.TrimSpace(line), "\t")
		if wanted[name] {
			units = append(units, Unit{Name: name, Status: strings.TrimSpace(status)})
		}
	}
	return units, nil
}
