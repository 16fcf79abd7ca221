// Package testsupport builds temp-dir backed configurations and playlist
// fixtures for package tests.
package testsupport
