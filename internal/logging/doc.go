// Package logging assembles structured slog loggers and formatting helpers used
// across radarflow.
//
// It owns the console and JSON handlers, the standardized field keys, and
// context-aware helpers so daemon code automatically tags log lines with the
// daemon name, radar source, volume id, and cycle correlation id. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
