package harvest

import (
	"context"
	"time"
)

// HealthProber reduces the extraction service's liveness endpoint to a status.
// Implementations never return an error: any failure maps to Unresponsive.
type HealthProber interface {
	Probe(ctx context.Context) HealthStatus
}

// Discoverer resolves the process-manager name of the extraction service.
// Failure to find a candidate is a soft fallback to a default name.
type Discoverer interface {
	Discover(ctx context.Context) string
}

// Lifecycle controls the external unit running the extraction service.
type Lifecycle interface {
	Discoverer
	Stop(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
}

// Processor performs one extraction attempt for one URL.
type Processor interface {
	Process(ctx context.Context, url string) error
}

// IndexSource returns the URL list of one index page. An empty list means
// the index is exhausted.
type IndexSource interface {
	PageURL(page int) string
	Page(ctx context.Context, page int) ([]string, error)
}

// FailureLog appends failure records.
type FailureLog interface {
	Record(ctx context.Context, rec FailureRecord) error
}

// Pacer blocks for a delay unless ctx ends first.
type Pacer interface {
	Pause(ctx context.Context, delay time.Duration)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}
