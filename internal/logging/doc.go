// Package logging assembles structured slog loggers and formatting helpers used
// across frontier.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and defines the standard field keys (component, node_id,
// identifier, event_type, error_hint, impact) so that lease, heartbeat, and
// worker code emit lines of the same shape. A no-op logger is provided for
// tests and wiring code that cannot fail.
package logging
