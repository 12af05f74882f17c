// Package observability provides an OpenTelemetry metrics extension for
// jobq. MetricsExtension implements the lifecycle hooks in package ext
// and records system-wide counters for enqueue, completion, retry,
// dead-letter and lease-recovery events.
//
// For per-execution tracing and duration histograms see middleware.Tracing
// and middleware.Metrics.
package observability
