// Package logging assembles structured slog loggers and formatting helpers used
// across the scheduler daemon and CLI.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so request handlers can tag log
// lines with task, component, and stage identifiers plus a correlation ID. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
