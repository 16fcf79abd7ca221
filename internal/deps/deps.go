package deps

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Requirement is an external binary a streamsync feature shells out to.
type Requirement struct {
	Name string
	// Command is the configured binary name or path. When empty, the first
	// of Candidates found on PATH is used.
	Command     string
	Candidates  []string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency. Command holds the
// resolved path when the binary was found.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// GitRequirement is the git binary used by the publish step.
func GitRequirement(binary string) Requirement {
	return Requirement{
		Name:        "git",
		Command:     binary,
		Candidates:  []string{"git"},
		Description: "Required to publish playlists",
	}
}

// CheckBinaries resolves every requirement in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, Resolve(req))
	}
	return results
}

// Resolve locates req. A configured path containing a separator must be an
// executable file; a bare name is looked up on PATH.
func Resolve(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}

	if cmd := strings.TrimSpace(req.Command); cmd != "" {
		status.Command = cmd
		if strings.ContainsRune(cmd, os.PathSeparator) {
			if info, err := os.Stat(cmd); err == nil && isExecutable(info) {
				status.Available = true
				return status
			}
			status.Detail = fmt.Sprintf("%q is not an executable file", cmd)
			return status
		}
		if resolved, err := exec.LookPath(cmd); err == nil {
			status.Command = resolved
			status.Available = true
			return status
		}
		status.Detail = fmt.Sprintf("binary %q not found", cmd)
		return status
	}

	if len(req.Candidates) == 0 {
		status.Detail = "command not configured"
		return status
	}
	for _, name := range req.Candidates {
		if resolved, err := exec.LookPath(name); err == nil {
			status.Command = resolved
			status.Available = true
			return status
		}
	}
	status.Command = req.Candidates[0]
	status.Detail = fmt.Sprintf("none of %s found on PATH", strings.Join(req.Candidates, ", "))
	return status
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
