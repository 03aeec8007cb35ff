package harvest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testPageDelay  = 2 * time.Second
	testBatchDelay = 30 * time.Second
	testPause      = 5 * time.Second
)

var crashErr = errors.New("RecursionError: maximum recursion depth exceeded while calling a Python object")

type harness struct {
	j         *journal
	prober    *scriptedProber
	lifecycle *fakeLifecycle
	processor *fakeProcessor
	index     *fakeIndex
	failures  *memFailures
	pacer     *instantPacer
	cfg       Config
}

func newHarness() *harness {
	j := &journal{}
	return &harness{
		j:         j,
		prober:    &scriptedProber{j: j, fallback: Responsive},
		lifecycle: &fakeLifecycle{j: j, name: "crawl4ai"},
		processor: &fakeProcessor{j: j, errs: map[string][]error{}, always: map[string]error{}},
		index:     &fakeIndex{j: j, pages: map[int][]string{}, errs: map[int]error{}},
		failures:  &memFailures{},
		pacer:     &instantPacer{},
		cfg: Config{
			StartPage:    1,
			MaxPage:      10,
			BatchSize:    50,
			MaxAttempts:  3,
			RetryDelay:   time.Millisecond,
			PageDelay:    testPageDelay,
			BatchDelay:   testBatchDelay,
			Preventive:   PollBudget{Interval: time.Millisecond, Attempts: 3},
			Crash:        PollBudget{Interval: time.Millisecond, Attempts: 3},
			Unresponsive: PollBudget{Interval: time.Millisecond, Attempts: 3},
		},
	}
}

func (h *harness) run(t *testing.T, ctx context.Context) (Summary, error) {
	t.Helper()
	o := NewOrchestrator(h.cfg, Components{
		Index:         h.index,
		Processor:     h.processor,
		Prober:        h.prober,
		Lifecycle:     h.lifecycle,
		Failures:      h.failures,
		Pacer:         h.pacer,
		Clock:         fixedClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		RecoveryPause: testPause,
	}, "run-1", zap.NewNop())
	summary, err := o.Run(ctx)
	assert.Equal(t, summary.Status, o.State())
	return summary, err
}

func TestRunAbortsWhenServiceIsDownAtStart(t *testing.T) {
	h := newHarness()
	h.prober.fallback = Unresponsive
	h.index.pages[1] = []string{"https://example.com/a"}

	summary, err := h.run(t, context.Background())

	require.ErrorIs(t, err, ErrServiceUnresponsive)
	assert.Equal(t, StateAborted, summary.Status)
	assert.Zero(t, summary.TotalProcessed)
	assert.Equal(t, -1, h.j.index("index:1"))
	assert.Equal(t, -1, h.j.index("discover"))
}

func TestRunProcessesPagesUntilEmpty(t *testing.T) {
	h := newHarness()
	h.index.pages[1] = []string{"u1", "u2"}
	h.index.pages[2] = []string{"u3"}

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, summary.Status)
	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Equal(t, 2, summary.PagesVisited)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Empty(t, h.failures.all())
	assert.Equal(t, 1, h.j.count("index:3"))
	assert.Equal(t, -1, h.j.index("index:4"))
	assert.Equal(t, 1, h.j.count("discover"))
	assert.Equal(t, 3, h.pacer.waited(testPageDelay))
}

func TestRunCompletesOnEmptyFirstPage(t *testing.T) {
	h := newHarness()

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, summary.Status)
	assert.Zero(t, summary.TotalProcessed)
	assert.Zero(t, summary.PagesVisited)
	assert.Empty(t, h.failures.all())
}

func TestRunStopsAtMaxPage(t *testing.T) {
	h := newHarness()
	h.cfg.MaxPage = 2
	for p := 1; p <= 4; p++ {
		h.index.pages[p] = []string{fmt.Sprintf("p%d", p)}
	}

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalProcessed)
	assert.Equal(t, -1, h.j.index("index:3"))
}

func TestRunCapsURLsPerPage(t *testing.T) {
	h := newHarness()
	h.cfg.MaxURLsPerPage = 2
	h.index.pages[1] = []string{"u1", "u2", "u3"}

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalProcessed)
	assert.Equal(t, -1, h.j.index("process:u3"))
}

func TestRunRetriesUpToMaxAttempts(t *testing.T) {
	h := newHarness()
	h.index.pages[1] = []string{"u1", "u2"}
	h.processor.always["u1"] = errors.New("boom")

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, h.j.count("process:u1"))
	assert.Equal(t, 1, h.j.count("process:u2"))
	assert.Equal(t, 1, summary.TotalProcessed)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Recoveries)
	assert.Equal(t, -1, h.j.index("stop:crawl4ai"))
	assert.Equal(t, 4, h.pacer.waited(testPageDelay))

	records := h.failures.all()
	require.Len(t, records, 1)
	assert.Equal(t, "u1", records[0].Source)
	assert.Equal(t, FailureTransient, records[0].Kind)
	assert.Equal(t, "run-1", records[0].RunID)
	assert.Contains(t, records[0].Message, "boom")
}

func TestRunSucceedsAfterRetry(t *testing.T) {
	h := newHarness()
	h.index.pages[1] = []string{"u1"}
	h.processor.errs["u1"] = []error{errors.New("flaky")}

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, h.j.count("process:u1"))
	assert.Equal(t, 1, summary.TotalProcessed)
	assert.Zero(t, summary.Failed)
	assert.Empty(t, h.failures.all())
}

func TestRunRecoversImmediatelyAfterCrashSignature(t *testing.T) {
	h := newHarness()
	h.index.pages[1] = []string{"u1", "u2", "u3"}
	h.processor.always["u2"] = crashErr

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, h.j.count("process:u2"))
	assert.Equal(t, 2, summary.TotalProcessed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Recoveries)
	assert.Equal(t, 1, summary.SinceLastRestart)

	stop := h.j.index("stop:crawl4ai")
	start := h.j.index("start:crawl4ai")
	require.NotEqual(t, -1, stop)
	assert.Greater(t, stop, h.j.lastIndex("process:u2"))
	assert.Less(t, stop, start)
	assert.Less(t, start, h.j.index("process:u3"))
	assert.Equal(t, 1, h.pacer.waited(testPause))

	records := h.failures.all()
	require.Len(t, records, 1)
	assert.Equal(t, FailureKnownCrash, records[0].Kind)
	assert.Equal(t, "u2", records[0].Source)
}

func TestRunAbortsWhenCrashRecoveryFails(t *testing.T) {
	h := newHarness()
	h.index.pages[1] = []string{"u1", "u2"}
	h.processor.always["u1"] = crashErr
	// initial check and pre-batch check pass, then the service stays down.
	h.prober.script = []HealthStatus{Responsive, Responsive}
	h.prober.fallback = Unresponsive

	summary, err := h.run(t, context.Background())

	require.ErrorIs(t, err, ErrRecoveryFailed)
	assert.Equal(t, StateAborted, summary.Status)
	assert.Equal(t, -1, h.j.index("process:u2"))
	assert.Zero(t, summary.Recoveries)
	assert.Equal(t, 1, summary.Failed)
}

func TestRunPreventiveRestartAtInterval(t *testing.T) {
	h := newHarness()
	h.cfg.RestartInterval = 2
	h.index.pages[1] = []string{"u1", "u2", "u3"}

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Equal(t, 1, summary.Recoveries)
	assert.Equal(t, 1, summary.SinceLastRestart)

	start := h.j.index("start:crawl4ai")
	require.NotEqual(t, -1, start)
	assert.Greater(t, h.j.index("stop:crawl4ai"), h.j.index("process:u2"))
	assert.Less(t, start, h.j.index("process:u3"))
}

func TestRunContinuesWhenPreventiveRestartFails(t *testing.T) {
	h := newHarness()
	h.cfg.RestartInterval = 1
	h.index.pages[1] = []string{"u1", "u2"}
	h.lifecycle.startErr = errors.New("no such container")

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalProcessed)
	assert.Zero(t, summary.Recoveries)
	assert.Equal(t, 2, summary.SinceLastRestart)
}

func TestRunDisabledPreventiveRestart(t *testing.T) {
	h := newHarness()
	h.index.pages[1] = []string{"u1", "u2", "u3", "u4"}

	_, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, -1, h.j.index("stop:crawl4ai"))
}

func TestRunRecoversBeforeBatchWhenUnresponsive(t *testing.T) {
	h := newHarness()
	h.cfg.BatchSize = 2
	h.index.pages[1] = []string{"u1", "u2", "u3"}
	h.prober.script = []HealthStatus{Responsive, Responsive, Unresponsive}

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Equal(t, 1, summary.Recoveries)
	assert.Equal(t, 1, summary.SinceLastRestart)
	assert.Less(t, h.j.index("process:u2"), h.j.index("stop:crawl4ai"))
	assert.Less(t, h.j.index("start:crawl4ai"), h.j.index("process:u3"))
	assert.Equal(t, 1, h.pacer.waited(testBatchDelay))
}

func TestRunAbortsWhenPreBatchRecoveryFails(t *testing.T) {
	h := newHarness()
	h.index.pages[1] = []string{"u1"}
	h.prober.script = []HealthStatus{Responsive}
	h.prober.fallback = Unresponsive

	summary, err := h.run(t, context.Background())

	require.ErrorIs(t, err, ErrRecoveryFailed)
	assert.Equal(t, StateAborted, summary.Status)
	assert.Equal(t, -1, h.j.index("process:u1"))
	assert.Equal(t, 1+h.cfg.Unresponsive.Attempts+1, h.j.count("probe"))
}

func TestRunEndsBatchEarlyWhenServiceDrops(t *testing.T) {
	h := newHarness()
	h.cfg.BatchSize = 2
	h.cfg.MaxAttempts = 1
	h.index.pages[1] = []string{"u1", "u2", "u3"}
	h.processor.always["u1"] = NewProcessingError(FailureTransport, "u1", errors.New("dial tcp: connection refused"))
	// initial, pre-batch, post-failure check.
	h.prober.script = []HealthStatus{Responsive, Responsive, Unresponsive}

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, -1, h.j.index("process:u2"))
	assert.Equal(t, 1, h.j.count("process:u3"))
	assert.Equal(t, 1, summary.TotalProcessed)
	assert.Equal(t, 1, summary.Failed)
	records := h.failures.all()
	require.Len(t, records, 1)
	assert.Equal(t, FailureTransport, records[0].Kind)
}

func TestRunKeepsBatchWhenServiceStillUpAfterConnectivityError(t *testing.T) {
	h := newHarness()
	h.cfg.MaxAttempts = 1
	h.index.pages[1] = []string{"u1", "u2"}
	h.processor.always["u1"] = errors.New("read timeout")

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, h.j.count("process:u2"))
	assert.Equal(t, 1, summary.TotalProcessed)
}

func TestRunStopsAtMissingIndexPage(t *testing.T) {
	h := newHarness()
	h.index.pages[1] = []string{"u1"}
	h.index.errs[2] = fmt.Errorf("fetch index: %w", ErrIndexNotFound)
	h.index.pages[3] = []string{"u3"}

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalProcessed)
	assert.Equal(t, -1, h.j.index("index:3"))
	records := h.failures.all()
	require.Len(t, records, 1)
	assert.Equal(t, h.index.PageURL(2), records[0].Source)
}

func TestRunSkipsMalformedIndexPage(t *testing.T) {
	h := newHarness()
	h.index.errs[1] = errors.New("parse index: XML syntax error on line 1")
	h.index.pages[2] = []string{"u2"}

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalProcessed)
	assert.Equal(t, 1, summary.PagesVisited)
	records := h.failures.all()
	require.Len(t, records, 1)
	assert.Equal(t, FailureTransport, records[0].Kind)
	assert.Equal(t, "https://example.com/sitemap.xml?page=1", records[0].Source)
}

func TestRunAbortsOnCanceledContext(t *testing.T) {
	h := newHarness()
	h.index.pages[1] = []string{"u1"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.run(t, ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, summary.Status)
	assert.Equal(t, -1, h.j.index("process:u1"))
}

func TestRunPausesBetweenBatches(t *testing.T) {
	h := newHarness()
	h.cfg.BatchSize = 2
	h.index.pages[1] = []string{"u1", "u2", "u3", "u4", "u5"}

	summary, err := h.run(t, context.Background())

	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalProcessed)
	assert.Equal(t, 2, h.pacer.waited(testBatchDelay))
}

func TestSnapshotTracksRun(t *testing.T) {
	h := newHarness()
	h.index.pages[1] = []string{"u1", "u2"}
	h.processor.always["u2"] = errors.New("boom")
	o := NewOrchestrator(h.cfg, Components{
		Index:     h.index,
		Processor: h.processor,
		Prober:    h.prober,
		Lifecycle: h.lifecycle,
		Failures:  h.failures,
		Pacer:     h.pacer,
	}, "run-snap", nil)

	before := o.Snapshot()
	assert.Equal(t, StateIdle, before.State)
	assert.Equal(t, "run-snap", before.RunID)

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	snap := o.Snapshot()
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, 1, snap.Page)
	assert.Equal(t, 1, snap.TotalProcessed)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.PagesVisited)
}
