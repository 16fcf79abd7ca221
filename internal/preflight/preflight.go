package preflight

import (
	"context"
	"time"

	"streamsync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Output directory (always checked)
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))

	if cfg.Merge.Enabled {
		results = append(results, CheckDirectoryAccess("Backup directory", cfg.Paths.BackupDir))
		results = append(results, CheckRemote(ctx, cfg.Merge.RemoteURL, time.Duration(cfg.Merge.FetchTimeout)*time.Second))
	}

	if cfg.Publish.Enabled {
		results = append(results, CheckGitRepo(ctx, cfg))
	}

	for _, dep := range CheckSystemDeps(cfg) {
		detail := dep.Command
		if !dep.Available {
			detail = dep.Detail
		}
		results = append(results, Result{Name: dep.Name, Passed: dep.Available, Detail: detail})
	}
	return results
}
