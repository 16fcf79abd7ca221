// Package daemon coordinates the long-running streamsync process.
//
// It takes the flock-based run lock so that a scheduled daemon and a manual
// `streamsync sync` never write the playlist tree at the same time, drives the
// scheduler, and exposes the optional status API. Cycle logic lives in the
// pipeline package; the daemon only owns startup, shutdown and reporting.
package daemon
