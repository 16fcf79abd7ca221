package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const masterManifest = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=2936000,RESOLUTION=1280x720
high/index.m3u8
`

type cliTestEnv struct {
	baseDir    string
	outputDir  string
	stateDir   string
	configPath string
	streamURL  string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/live/master.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(masterManifest))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	base := t.TempDir()
	env := &cliTestEnv{
		baseDir:    base,
		outputDir:  filepath.Join(base, "m3u-files"),
		stateDir:   filepath.Join(base, "state"),
		configPath: filepath.Join(base, "config.toml"),
		streamURL:  srv.URL + "/live/master.m3u8",
	}
	writeTestConfig(t, env)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
output_dir = %q
backup_dir = %q
log_dir = %q
state_dir = %q
repo_dir = %q

[logging]
level = "error"

[[groups]]
name = "測試頻道"
file = "test.m3u"

[[groups.channels]]
name = "直播一"
url = %q
mode = "direct"
`,
		env.outputDir,
		filepath.Join(env.baseDir, "backups"),
		filepath.Join(env.baseDir, "logs"),
		env.stateDir,
		env.baseDir,
		env.streamURL,
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath, stdin string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
