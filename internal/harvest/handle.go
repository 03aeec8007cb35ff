package harvest

import (
	"context"
	"sync"
)

// ServiceHandle memoizes the resolved process-manager name of the extraction
// service. Resolution happens at most once until Invalidate is called.
type ServiceHandle struct {
	discoverer Discoverer

	mu       sync.Mutex
	resolved string
}

// NewServiceHandle returns a handle that resolves its name through d.
func NewServiceHandle(d Discoverer) *ServiceHandle {
	return &ServiceHandle{discoverer: d}
}

// Resolve returns the cached name, discovering it on first use.
func (h *ServiceHandle) Resolve(ctx context.Context) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resolved == "" {
		h.resolved = h.discoverer.Discover(ctx)
	}
	return h.resolved
}

// Name returns the cached name without triggering discovery.
func (h *ServiceHandle) Name() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resolved, h.resolved != ""
}

// Invalidate forgets the cached name so the next Resolve rediscovers it.
func (h *ServiceHandle) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resolved = ""
}
