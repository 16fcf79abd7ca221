// Package main hosts the streamsync CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the scheduled daemon, one-shot sync and
// merge cycles, candidate ranking for ad-hoc URL lists, and configuration
// scaffolding. It centralizes configuration resolution and logger setup so
// subcommands can focus on output instead of wiring.
//
// Keep this package lean: add new functionality to the internal packages
// first, then surface it through a command or flag here.
package main
