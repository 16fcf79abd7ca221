// Package logging assembles structured slog loggers and formatting helpers used
// across streamsync.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context helpers so capture and merge code can tag log
// lines with the current cycle, group and channel. The console handler prints
// the group/channel subject in brackets after the component name and colours
// levels when writing to a terminal. A no-op logger is provided for tests and
// wiring code that cannot fail.
package logging
