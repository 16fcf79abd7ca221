package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"streamsync/internal/config"
	"streamsync/internal/deps"
)

// CheckRemote verifies that the remote master playlist can be fetched.
func CheckRemote(ctx context.Context, rawURL string, timeout time.Duration) Result {
	const name = "Remote master playlist"

	target := strings.TrimSpace(rawURL)
	if target == "" {
		return Result{Name: name, Detail: "missing remote_url"}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}
	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	}
	return Result{Name: name, Detail: fmt.Sprintf("fetch failed (%d)", resp.StatusCode)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckGitRepo verifies that dir is a git work tree with the configured remote.
func CheckGitRepo(ctx context.Context, cfg *config.Config) Result {
	const name = "Publish repository"

	probe := ProbeRepo(ctx, cfg.Publish.GitBinary, cfg.Paths.RepoDir, cfg.Publish.Remote)
	if !probe.IsRepo {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a git work tree)", cfg.Paths.RepoDir)}
	}
	if probe.RemoteURL == "" {
		return Result{Name: name, Detail: fmt.Sprintf("remote %q not configured", cfg.Publish.Remote)}
	}
	return Result{Name: name, Passed: true, Detail: probe.Detail()}
}

// CheckSystemDeps evaluates the external binaries required by the enabled
// features. Both the daemon and the CLI doctor command use this so the
// requirements list lives in one place.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	var reqs []deps.Requirement
	if cfg.UsesBrowser() {
		reqs = append(reqs, deps.ChromeRequirement(cfg.Capture.ChromePath))
	}
	if cfg.Publish.Enabled {
		reqs = append(reqs, deps.GitRequirement(cfg.Publish.GitBinary))
	}
	return deps.CheckBinaries(reqs)
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "request timed out (remote unreachable)"
	}
	return err.Error()
}
