// Package preflight provides readiness checks for the filesystem paths,
// binaries and remote endpoints streamsync depends on.
//
// These checks run in two contexts:
//   - The daemon logs RunAll results at startup so a misconfigured host is
//     visible before the first cycle.
//   - The CLI "streamsync doctor" command renders every check with its detail.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
