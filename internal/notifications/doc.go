// Package notifications pushes pipeline events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never need to check whether notifications are enabled. Routine
// events (a cycle where every channel updated) are suppressed; only failures
// and publish warnings reach the topic.
package notifications
