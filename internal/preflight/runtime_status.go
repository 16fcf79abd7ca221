package preflight

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// RepoProbe reports the current state of the publish repository.
type RepoProbe struct {
	IsRepo    bool
	Dir       string
	Branch    string
	RemoteURL string
	Dirty     bool
}

// ProbeRepo inspects dir with git. Each query is bounded to two seconds; a
// failed query leaves its field empty.
func ProbeRepo(ctx context.Context, git, dir, remote string) RepoProbe {
	probe := RepoProbe{Dir: dir}
	git = strings.TrimSpace(git)
	if git == "" {
		git = "git"
	}
	if strings.TrimSpace(dir) == "" {
		return probe
	}
	if _, err := exec.LookPath(git); err != nil {
		return probe
	}

	run := func(args ...string) (string, bool) {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		cmd := exec.CommandContext(queryCtx, git, append([]string{"-C", dir}, args...)...) //nolint:gosec
		output, err := cmd.Output()
		if err != nil {
			return "", false
		}
		return strings.TrimSpace(string(output)), true
	}

	if inside, ok := run("rev-parse", "--is-inside-work-tree"); !ok || inside != "true" {
		return probe
	}
	probe.IsRepo = true
	probe.Branch, _ = run("rev-parse", "--abbrev-ref", "HEAD")
	if remote != "" {
		probe.RemoteURL, _ = run("remote", "get-url", remote)
	}
	if status, ok := run("status", "--porcelain"); ok && status != "" {
		probe.Dirty = true
	}
	return probe
}

// Detail renders a display-friendly summary for status UIs.
func (p RepoProbe) Detail() string {
	if !p.IsRepo {
		return "Not a git repository"
	}
	state := "clean"
	if p.Dirty {
		state = "uncommitted changes"
	}
	return fmt.Sprintf("%s on %s (%s)", p.RemoteURL, p.Branch, state)
}
