// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start a harvest in the background.
//   - GET /v1/runs/current for the live status of the latest run.
//   - GET /v1/runs, /v1/runs/{id} and /v1/runs/{id}/files for run history
//     via the RunRepository interface.
package api
