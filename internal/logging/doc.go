// Package logging builds the slog loggers used across the CLI and runner.
//
// It supports a console format (timestamp, level, component prefix, key=value
// attributes) and a JSON format, writes to stdout plus a per-run log file, and
// standardizes the structured field keys (account, batch, event_type,
// error_hint) so run logs stay grep-able across components. The no-op logger
// keeps tests quiet without nil checks at call sites.
package logging
