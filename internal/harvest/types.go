package harvest

import (
	"fmt"
	"time"
)

// HealthStatus is the outcome of a single liveness probe. Probes carry no memory.
type HealthStatus int

// Health probe outcomes.
const (
	Unresponsive HealthStatus = iota
	Responsive
)

func (s HealthStatus) String() string {
	if s == Responsive {
		return "responsive"
	}
	return "unresponsive"
}

// State is a node of the orchestrator state machine.
type State string

// Orchestrator states.
const (
	StateIdle             State = "idle"
	StateRunning          State = "running"
	StatePausedForBatch   State = "paused_batch_recovery"
	StatePausedForRestart State = "paused_preventive_restart"
	StatePausedForCrash   State = "paused_crash_recovery"
	StateCompleted        State = "completed"
	StateAborted          State = "aborted"
)

// Trigger names the call site that asked for a recovery.
type Trigger string

// Recovery triggers.
const (
	TriggerPreventive   Trigger = "preventive"
	TriggerCrash        Trigger = "crash"
	TriggerUnresponsive Trigger = "unresponsive"
	TriggerManual       Trigger = "manual"
)

// WorkUnit is one URL flowing through the retry loop.
type WorkUnit struct {
	URL      string
	Attempts int
}

// RunState holds the counters of one run. It is owned by the Orchestrator and
// threaded by pointer through the loop; nothing else mutates it.
type RunState struct {
	TotalProcessed   int
	SinceLastRestart int
	Failed           int
	Recoveries       int
	PagesVisited     int
}

func (s *RunState) recordSuccess() {
	s.TotalProcessed++
	s.SinceLastRestart++
}

func (s *RunState) recordFailure() {
	s.Failed++
}

func (s *RunState) recordRecovery() {
	s.Recoveries++
	s.SinceLastRestart = 0
}

// FailureRecord is one entry of the append-only failure log.
type FailureRecord struct {
	RunID     string
	Source    string
	Kind      FailureKind
	Message   string
	Timestamp time.Time
}

// BatchWindow is a contiguous slice of one index page's URL list.
type BatchWindow struct {
	Page   int
	Number int
	Start  int
	URLs   []string
	Total  int
}

// End is the exclusive index of the window within the page.
func (w BatchWindow) End() int {
	return w.Start + len(w.URLs)
}

// Last reports whether the window closes the page.
func (w BatchWindow) Last() bool {
	return w.End() >= w.Total
}

func (w BatchWindow) String() string {
	return fmt.Sprintf("page %d batch %d (%d-%d of %d)", w.Page, w.Number, w.Start+1, w.End(), w.Total)
}

// PollBudget bounds a polling loop: at most Attempts checks, Interval apart.
type PollBudget struct {
	Interval time.Duration
	Attempts int
}

// Span is the longest wall-clock time the budget can spend waiting.
func (b PollBudget) Span() time.Duration {
	if b.Attempts <= 1 {
		return 0
	}
	return time.Duration(b.Attempts-1) * b.Interval
}

// Summary is reported when a run reaches Completed or Aborted.
type Summary struct {
	RunID            string
	Status           State
	TotalProcessed   int
	Failed           int
	Recoveries       int
	PagesVisited     int
	SinceLastRestart int
	Started          time.Time
	Finished         time.Time
	Err              error
}

// Duration is the run's wall-clock length.
func (s Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}
