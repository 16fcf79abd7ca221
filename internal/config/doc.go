// Package config loads, normalizes, and validates streamsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// STREAMSYNC_REMOTE_URL and STREAMSYNC_GIT_BRANCH. Channels are declared as
// [[groups]] with nested [[groups.channels]] tables so capture order matches
// declaration order.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, resolved master playlist locations, and clear validation
// errors.
package config
