// Package logging assembles structured slog loggers and formatting helpers used
// across the indexer.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so per-tarball code can tag log lines with
// the run name, tracking id, controller, and tarball path without threading
// them through every call. The package also provides a no-op logger for tests.
package logging
