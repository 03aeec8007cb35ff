package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-harvester/internal/metrics"
)

var errNotReady = errors.New("service not ready")

// Recovery restarts the extraction service and waits for it to answer again.
// The same routine serves preventive restarts, crash recovery and pre-batch
// recovery; call sites differ only in their poll budget.
type Recovery struct {
	lifecycle Lifecycle
	prober    HealthProber
	pacer     Pacer
	pause     time.Duration
	logger    *zap.Logger
}

// NewRecovery builds a Recovery. pause is the wait between stop and start.
func NewRecovery(lifecycle Lifecycle, prober HealthProber, pacer Pacer, pause time.Duration, logger *zap.Logger) *Recovery {
	if pacer == nil {
		pacer = TimerPacer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recovery{
		lifecycle: lifecycle,
		prober:    prober,
		pacer:     pacer,
		pause:     pause,
		logger:    logger,
	}
}

// Recover stops the unit, pauses, starts it and polls health within budget.
// It reports whether the service became responsive. Stop failures are soft.
func (r *Recovery) Recover(ctx context.Context, handle *ServiceHandle, trigger Trigger, budget PollBudget) bool {
	started := time.Now()
	name := handle.Resolve(ctx)
	log := r.logger.With(zap.String("trigger", string(trigger)), zap.String("unit", name))
	log.Info("restarting extraction service")

	ok := r.restart(ctx, log, name, budget)
	metrics.ObserveRecovery(string(trigger), ok, time.Since(started))
	if ok {
		log.Info("extraction service recovered", zap.Duration("took", time.Since(started)))
	} else {
		log.Error("extraction service did not recover", zap.Duration("took", time.Since(started)))
	}
	return ok
}

func (r *Recovery) restart(ctx context.Context, log *zap.Logger, name string, budget PollBudget) bool {
	if err := r.lifecycle.Stop(ctx, name); err != nil {
		log.Warn("stop failed; starting anyway", zap.Error(err))
	}

	log.Info("waiting for the unit to release resources", zap.Duration("pause", r.pause))
	r.pacer.Pause(ctx, r.pause)

	if err := r.lifecycle.Start(ctx, name); err != nil {
		log.Error("start failed", zap.Error(err))
		return false
	}
	return WaitHealthy(ctx, r.prober, budget, log)
}

// WaitHealthy polls prober within budget and reports whether it answered.
func WaitHealthy(ctx context.Context, prober HealthProber, budget PollBudget, logger *zap.Logger) bool {
	if logger == nil {
		logger = zap.NewNop()
	}
	started := time.Now()
	span := budget.Span()
	err := Poll(ctx, budget, func(ctx context.Context, attempt int) error {
		status := prober.Probe(ctx)
		metrics.ObserveProbe(status.String())
		if status == Responsive {
			return nil
		}
		elapsed := time.Since(started)
		logger.Info("service not ready",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", budget.Attempts),
			zap.Duration("elapsed", elapsed.Round(time.Second)),
			zap.Duration("remaining", max(span-elapsed, 0).Round(time.Second)),
		)
		return fmt.Errorf("probe %d: %w", attempt, errNotReady)
	})
	return err == nil
}
