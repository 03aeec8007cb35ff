// Package api hosts the optional status server that runs beside a harvest.
// Routes:
//   - GET /healthz for liveness of the harvester itself.
//   - GET /readyz reports whether the extraction service answers its probe.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for a JSON snapshot of the current run.
package api
