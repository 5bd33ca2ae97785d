// Package progress carries harvest run events from the orchestrator to
// pluggable sinks. The orchestrator talks to a Reporter, which turns calls
// into Events and hands them to a Hub; the Hub batches on a background
// goroutine and never blocks the caller, so reporting stays fire-and-forget.
package progress
