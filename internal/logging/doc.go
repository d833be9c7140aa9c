// Package logging assembles structured slog loggers and formatting helpers used
// across the notebook service and CLI.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so request and job code can tag
// log lines with job IDs, pipeline steps, and correlation IDs. TeeLogger lets
// the daemon duplicate records into an OpenTelemetry log exporter without the
// rest of the code knowing about it. The package also provides a no-op logger
// for tests and wiring code that cannot fail.
package logging
