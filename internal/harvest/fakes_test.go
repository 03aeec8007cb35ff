package harvest

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// journal records collaborator calls in order so tests can assert sequencing.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, fmt.Sprintf(format, args...))
}

func (j *journal) entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

func (j *journal) index(call string) int {
	for i, c := range j.entries() {
		if c == call {
			return i
		}
	}
	return -1
}

func (j *journal) lastIndex(call string) int {
	entries := j.entries()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i] == call {
			return i
		}
	}
	return -1
}

func (j *journal) count(call string) int {
	n := 0
	for _, c := range j.entries() {
		if c == call {
			n++
		}
	}
	return n
}

// scriptedProber answers from script, then from fallback.
type scriptedProber struct {
	j        *journal
	script   []HealthStatus
	fallback HealthStatus
	n        int
}

func (p *scriptedProber) Probe(context.Context) HealthStatus {
	p.j.add("probe")
	if p.n < len(p.script) {
		s := p.script[p.n]
		p.n++
		return s
	}
	return p.fallback
}

type fakeLifecycle struct {
	j        *journal
	name     string
	stopErr  error
	startErr error
}

func (l *fakeLifecycle) Discover(context.Context) string {
	l.j.add("discover")
	return l.name
}

func (l *fakeLifecycle) Stop(_ context.Context, name string) error {
	l.j.add("stop:%s", name)
	return l.stopErr
}

func (l *fakeLifecycle) Start(_ context.Context, name string) error {
	l.j.add("start:%s", name)
	return l.startErr
}

// fakeProcessor returns the queued errors for a URL in order, then nil.
type fakeProcessor struct {
	j      *journal
	errs   map[string][]error
	always map[string]error
}

func (p *fakeProcessor) Process(_ context.Context, url string) error {
	p.j.add("process:%s", url)
	if err, ok := p.always[url]; ok {
		return err
	}
	queue := p.errs[url]
	if len(queue) == 0 {
		return nil
	}
	p.errs[url] = queue[1:]
	return queue[0]
}

type fakeIndex struct {
	j     *journal
	pages map[int][]string
	errs  map[int]error
}

func (f *fakeIndex) PageURL(page int) string {
	return fmt.Sprintf("https://example.com/sitemap.xml?page=%d", page)
}

func (f *fakeIndex) Page(_ context.Context, page int) ([]string, error) {
	f.j.add("index:%d", page)
	if err, ok := f.errs[page]; ok {
		return nil, err
	}
	return f.pages[page], nil
}

type memFailures struct {
	mu      sync.Mutex
	records []FailureRecord
}

func (m *memFailures) Record(_ context.Context, rec FailureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memFailures) all() []FailureRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FailureRecord(nil), m.records...)
}

// instantPacer never blocks but remembers what it was asked to wait.
type instantPacer struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *instantPacer) Pause(_ context.Context, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, d)
}

func (p *instantPacer) waited(d time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, got := range p.delays {
		if got == d {
			n++
		}
	}
	return n
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }
