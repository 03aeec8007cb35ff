// Package harvest implements the resilient batch orchestration loop that drives
// content extraction for every URL of a paginated sitemap index.
//
// The Orchestrator walks index pages in order, splits each page into fixed-size
// batches and pushes every URL through a Processor inside a bounded retry loop.
// Around that loop it keeps the external extraction service alive: a health
// check before each batch, a preventive restart after a configured number of
// successful units, and an immediate reactive recovery when a failure carries
// the service's known crash signature. Recovery is one routine (stop, pause,
// start, poll health) parameterized by a poll budget per call site.
//
// Everything runs on the caller's goroutine. Waiting is cooperative and bounded
// per call; only the run as a whole is unbounded in wall-clock time.
package harvest
