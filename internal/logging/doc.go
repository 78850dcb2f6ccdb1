// Package logging assembles the structured slog loggers used across wotrack.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and provides component loggers plus a no-op logger for tests and
// wiring code that cannot fail.
package logging
