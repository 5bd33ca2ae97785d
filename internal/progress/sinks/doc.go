// Package sinks implements concrete run-event consumers: Prometheus metrics,
// run-history storage, an in-memory status view for the HTTP API, completion
// notifications, and structured logging. Each sink satisfies progress.Sink
// and is safe for repeated Consume/Close cycles.
package sinks
