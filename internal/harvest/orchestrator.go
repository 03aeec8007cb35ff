package harvest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-harvester/internal/clock/system"
	"github.com/JakeFAU/sitemap-harvester/internal/metrics"
)

// Config holds the pacing, batching and recovery knobs of a run.
type Config struct {
	StartPage       int
	MaxPage         int
	MaxURLsPerPage  int
	BatchSize       int
	MaxAttempts     int
	RetryDelay      time.Duration
	PageDelay       time.Duration
	BatchDelay      time.Duration
	RestartInterval int
	Preventive      PollBudget
	Crash           PollBudget
	Unresponsive    PollBudget
}

func (c Config) normalized() Config {
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	return c
}

// Components are the collaborators an Orchestrator drives.
type Components struct {
	Index     IndexSource
	Processor Processor
	Prober    HealthProber
	Lifecycle Lifecycle
	Failures  FailureLog
	Pacer     Pacer
	Clock     Clock
	// RecoveryPause is the wait between stopping and starting the service.
	RecoveryPause time.Duration
}

type unitOutcome int

const (
	unitDone unitOutcome = iota
	unitEndBatch
)

type pageAction int

const (
	pageProcess pageAction = iota
	pageSkip
	pageStop
)

// Orchestrator is the top-level batch driver. Run must not be called
// concurrently; Snapshot and State may be read from any goroutine.
type Orchestrator struct {
	cfg       Config
	index     IndexSource
	processor Processor
	prober    HealthProber
	failures  FailureLog
	pacer     Pacer
	clock     Clock
	handle    *ServiceHandle
	recovery  *Recovery
	runID     string
	logger    *zap.Logger
	state     State

	mu   sync.Mutex
	snap Snapshot
}

// Snapshot is a point-in-time view of a run, safe to read from other goroutines.
type Snapshot struct {
	RunID            string `json:"run_id"`
	State            State  `json:"state"`
	Page             int    `json:"page"`
	TotalProcessed   int    `json:"total_processed"`
	SinceLastRestart int    `json:"since_last_restart"`
	Failed           int    `json:"failed"`
	Recoveries       int    `json:"recoveries"`
	PagesVisited     int    `json:"pages_visited"`
}

// NewOrchestrator wires an Orchestrator for a single run identified by runID.
func NewOrchestrator(cfg Config, c Components, runID string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.Pacer == nil {
		c.Pacer = TimerPacer{}
	}
	if c.Clock == nil {
		c.Clock = system.Clock{}
	}
	logger = logger.With(zap.String("run_id", runID))
	return &Orchestrator{
		cfg:       cfg.normalized(),
		index:     c.Index,
		processor: c.Processor,
		prober:    c.Prober,
		failures:  c.Failures,
		pacer:     c.Pacer,
		clock:     c.Clock,
		handle:    NewServiceHandle(c.Lifecycle),
		recovery:  NewRecovery(c.Lifecycle, c.Prober, c.Pacer, c.RecoveryPause, logger),
		runID:     runID,
		logger:    logger,
		state:     StateIdle,
		snap:      Snapshot{RunID: runID, State: StateIdle},
	}
}

// State returns the current state of the run.
func (o *Orchestrator) State() State {
	return o.Snapshot().State
}

// Snapshot returns the latest published view of the run.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

func (o *Orchestrator) publish(page int, run *RunState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snap.State = o.state
	if page > 0 {
		o.snap.Page = page
	}
	o.snap.TotalProcessed = run.TotalProcessed
	o.snap.SinceLastRestart = run.SinceLastRestart
	o.snap.Failed = run.Failed
	o.snap.Recoveries = run.Recoveries
	o.snap.PagesVisited = run.PagesVisited
}

// Run processes every index page in the configured range. It returns a nil
// error when the run completes and a wrapped ErrServiceUnresponsive,
// ErrRecoveryFailed or context error when it aborts. The Summary is always set.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	run := &RunState{}
	summary := Summary{RunID: o.runID, Started: o.clock.Now()}
	o.transition(StateIdle)

	if o.probe(ctx) != Responsive {
		return o.finish(summary, run, fmt.Errorf("initial health check: %w", ErrServiceUnresponsive))
	}
	unit := o.handle.Resolve(ctx)

	o.transition(StateRunning)
	o.logger.Info("starting harvest",
		zap.Int("start_page", o.cfg.StartPage),
		zap.Int("max_page", o.cfg.MaxPage),
		zap.String("unit", unit),
	)

	for page := o.cfg.StartPage; page <= o.cfg.MaxPage; page++ {
		if err := ctx.Err(); err != nil {
			return o.finish(summary, run, err)
		}
		urls, action := o.loadPage(ctx, page)
		if action == pageStop {
			break
		}
		if action == pageSkip {
			continue
		}
		run.PagesVisited++
		o.publish(page, run)
		if err := o.runPage(ctx, page, urls, run); err != nil {
			return o.finish(summary, run, err)
		}
	}
	return o.finish(summary, run, nil)
}

func (o *Orchestrator) loadPage(ctx context.Context, page int) ([]string, pageAction) {
	source := o.index.PageURL(page)
	log := o.logger.With(zap.Int("page", page), zap.String("index_url", source))
	log.Info("fetching index page")

	urls, err := o.index.Page(ctx, page)
	if err != nil {
		metrics.ObserveIndexPage("error")
		log.Error("index page failed", zap.Error(err))
		o.recordFailure(ctx, source, FailureTransport, err)
		if IsIndexNotFound(err) {
			log.Info("index page not found; treating as end of index")
			return nil, pageStop
		}
		return nil, pageSkip
	}
	if len(urls) == 0 {
		metrics.ObserveIndexPage("empty")
		log.Info("index page is empty; end of index")
		return nil, pageStop
	}
	metrics.ObserveIndexPage("ok")

	if o.cfg.MaxURLsPerPage > 0 && len(urls) > o.cfg.MaxURLsPerPage {
		log.Info("capping index page", zap.Int("found", len(urls)), zap.Int("cap", o.cfg.MaxURLsPerPage))
		urls = urls[:o.cfg.MaxURLsPerPage]
	}
	log.Info("index page loaded", zap.Int("urls", len(urls)))
	return urls, pageProcess
}

func (o *Orchestrator) runPage(ctx context.Context, page int, urls []string, run *RunState) error {
	for start := 0; start < len(urls); start += o.cfg.BatchSize {
		end := min(start+o.cfg.BatchSize, len(urls))
		window := BatchWindow{
			Page:   page,
			Number: start/o.cfg.BatchSize + 1,
			Start:  start,
			URLs:   urls[start:end],
			Total:  len(urls),
		}
		if err := o.runBatch(ctx, window, run); err != nil {
			return err
		}
		if !window.Last() {
			o.logger.Info("batch completed; letting the service breathe",
				zap.Int("total_processed", run.TotalProcessed),
				zap.Int("since_restart", run.SinceLastRestart),
				zap.Duration("wait", o.cfg.BatchDelay),
			)
			o.pacer.Pause(ctx, o.cfg.BatchDelay)
		}
	}
	return nil
}

func (o *Orchestrator) runBatch(ctx context.Context, window BatchWindow, run *RunState) error {
	log := o.logger.With(zap.Int("page", window.Page), zap.Int("batch", window.Number))
	log.Info("processing batch", zap.String("window", window.String()))

	if o.probe(ctx) != Responsive {
		log.Warn("service unresponsive before batch; recovering")
		o.transition(StatePausedForBatch)
		if !o.recover(ctx, TriggerUnresponsive, o.cfg.Unresponsive, run) {
			return fmt.Errorf("recover before %s: %w", window, ErrRecoveryFailed)
		}
		o.transition(StateRunning)
	}

	for i, url := range window.URLs {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.maybePreventiveRestart(ctx, run)

		log.Info("processing url",
			zap.Int("position", window.Start+i+1),
			zap.Int("of", window.Total),
			zap.String("url", url),
		)
		outcome, err := o.runUnit(ctx, &WorkUnit{URL: url}, run)
		o.publish(window.Page, run)
		if err != nil {
			return err
		}
		if outcome == unitEndBatch {
			log.Warn("service appears down; ending batch early, next batch will check health")
			return nil
		}
	}
	return nil
}

func (o *Orchestrator) maybePreventiveRestart(ctx context.Context, run *RunState) {
	if o.cfg.RestartInterval <= 0 || run.SinceLastRestart < o.cfg.RestartInterval {
		return
	}
	o.logger.Info("preventive restart due", zap.Int("since_restart", run.SinceLastRestart))
	o.transition(StatePausedForRestart)
	if !o.recover(ctx, TriggerPreventive, o.cfg.Preventive, run) {
		o.logger.Warn("preventive restart failed; continuing anyway")
	}
	o.transition(StateRunning)
}

func (o *Orchestrator) runUnit(ctx context.Context, unit *WorkUnit, run *RunState) (unitOutcome, error) {
	log := o.logger.With(zap.String("url", unit.URL))
	retry := PollBudget{Interval: o.cfg.RetryDelay, Attempts: o.cfg.MaxAttempts}

	err := Poll(ctx, retry, func(ctx context.Context, attempt int) error {
		unit.Attempts = attempt
		metrics.ObserveAttempt()
		err := o.processor.Process(ctx, unit.URL)
		if err != nil && attempt < o.cfg.MaxAttempts {
			log.Warn("attempt failed; retrying",
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", o.cfg.RetryDelay),
				zap.Error(err),
			)
		}
		o.pacer.Pause(ctx, o.cfg.PageDelay)
		return err
	})
	if err == nil {
		run.recordSuccess()
		metrics.ObserveUnit(metrics.OutcomeSucceeded, "")
		metrics.SetProcessed(run.TotalProcessed)
		log.Info("url processed", zap.Int("attempts", unit.Attempts), zap.Int("total_processed", run.TotalProcessed))
		return unitDone, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return unitDone, ctxErr
	}

	run.recordFailure()
	kind := KindOf(err)
	if Classify(err.Error()) == FailureKnownCrash {
		kind = FailureKnownCrash
	}
	metrics.ObserveUnit(metrics.OutcomeFailed, string(kind))
	log.Error("url failed", zap.Int("attempts", unit.Attempts), zap.String("kind", string(kind)), zap.Error(err))
	o.recordFailure(ctx, unit.URL, kind, err)

	if kind == FailureKnownCrash {
		log.Warn("known crash signature detected; recovering immediately")
		o.transition(StatePausedForCrash)
		if !o.recover(ctx, TriggerCrash, o.cfg.Crash, run) {
			return unitDone, fmt.Errorf("recover after crash on %s: %w", unit.URL, ErrRecoveryFailed)
		}
		o.transition(StateRunning)
		return unitDone, nil
	}
	if IsConnectivity(err) && o.probe(ctx) != Responsive {
		return unitEndBatch, nil
	}
	return unitDone, nil
}

func (o *Orchestrator) recover(ctx context.Context, trigger Trigger, budget PollBudget, run *RunState) bool {
	if !o.recovery.Recover(ctx, o.handle, trigger, budget) {
		return false
	}
	run.recordRecovery()
	return true
}

func (o *Orchestrator) probe(ctx context.Context) HealthStatus {
	status := o.prober.Probe(ctx)
	metrics.ObserveProbe(status.String())
	return status
}

func (o *Orchestrator) recordFailure(ctx context.Context, source string, kind FailureKind, cause error) {
	if o.failures == nil {
		return
	}
	rec := FailureRecord{
		RunID:     o.runID,
		Source:    source,
		Kind:      kind,
		Message:   cause.Error(),
		Timestamp: o.clock.Now(),
	}
	if err := o.failures.Record(ctx, rec); err != nil {
		o.logger.Warn("failed to record failure", zap.String("source", source), zap.Error(err))
	}
}

func (o *Orchestrator) transition(next State) {
	if o.state != next {
		o.logger.Debug("state transition", zap.String("from", string(o.state)), zap.String("to", string(next)))
	}
	o.state = next
	o.mu.Lock()
	o.snap.State = next
	o.mu.Unlock()
	metrics.SetState(string(next))
}

func (o *Orchestrator) finish(summary Summary, run *RunState, err error) (Summary, error) {
	summary.Finished = o.clock.Now()
	summary.TotalProcessed = run.TotalProcessed
	summary.Failed = run.Failed
	summary.Recoveries = run.Recoveries
	summary.PagesVisited = run.PagesVisited
	summary.SinceLastRestart = run.SinceLastRestart
	o.publish(0, run)

	fields := []zap.Field{
		zap.Int("total_processed", run.TotalProcessed),
		zap.Int("failed", run.Failed),
		zap.Int("recoveries", run.Recoveries),
		zap.Duration("took", summary.Duration()),
	}
	if err != nil {
		o.transition(StateAborted)
		summary.Status = StateAborted
		summary.Err = err
		o.logger.Error("harvest aborted", append(fields, zap.Error(err))...)
		return summary, err
	}
	o.transition(StateCompleted)
	summary.Status = StateCompleted
	o.logger.Info("harvest completed", fields...)
	return summary, nil
}
