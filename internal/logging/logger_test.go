package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"streamsync/internal/logging"
)

func TestConsoleLoggerFormatsSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithChannel(logging.WithCycle(context.Background(), "cycle-1"), "台灣頻道", "龍華電影")
	component := logging.NewComponentLogger(logger, "capture")
	logging.WithContext(ctx, component).Info("manifest found", logging.Int("attempt", 2))
	logger.Debug("hidden")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "capture [台灣頻道/龍華電影]: manifest found") {
		t.Fatalf("expected component and subject prefix, got %q", line)
	}
	if !strings.Contains(line, "attempt=2") || !strings.Contains(line, "cycle_id=cycle-1") {
		t.Fatalf("expected structured fields, got %q", line)
	}
	if strings.Contains(line, "hidden") {
		t.Fatalf("debug line should be filtered at info level: %q", line)
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("file output must not be colourised: %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestJSONLoggerRenamesKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("merge skipped", logging.String(logging.FieldEventType, "merge_skipped"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload["level"] != "warn" {
		t.Fatalf("expected lowercase level, got %v", payload["level"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", payload)
	}
	if payload["event_type"] != "merge_skipped" {
		t.Fatalf("unexpected event_type: %v", payload["event_type"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "push rejected", "publish_rejected", logging.String(logging.FieldImpact, "remote not updated"))

	out := buf.String()
	for _, want := range []string{`"event_type":"publish_rejected"`, `"error_hint":"check logs for details"`, `"impact":"remote not updated"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestRunIDHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.WithRunID(slog.NewJSONHandler(&buf, nil), "20240501T120000.000Z")).With("extra", "value")
	logger.Info("started")

	out := buf.String()
	if !strings.Contains(out, `"run_id":"20240501T120000.000Z"`) || !strings.Contains(out, `"extra":"value"`) {
		t.Fatalf("unexpected output: %s", out)
	}
	if _, ok := logging.WithRunID(nil, "x").(logging.NoopHandler); !ok {
		t.Fatal("expected NoopHandler for nil base")
	}
}

func TestTeeHandlerWritesToAll(t *testing.T) {
	var first, second bytes.Buffer
	debug := slog.NewTextHandler(&first, &slog.HandlerOptions{Level: slog.LevelDebug})
	info := slog.NewTextHandler(&second, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(logging.TeeHandler(debug, nil, info))

	logger.Debug("only first")
	logger.Info("both")

	if !strings.Contains(first.String(), "only first") || !strings.Contains(first.String(), "both") {
		t.Fatalf("first handler missing records: %s", first.String())
	}
	if strings.Contains(second.String(), "only first") || !strings.Contains(second.String(), "both") {
		t.Fatalf("second handler level filtering broken: %s", second.String())
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "streamsync-old.log")
	active := filepath.Join(dir, "streamsync-active.log")
	fresh := filepath.Join(dir, "streamsync-fresh.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, active, fresh, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, active, other} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 3, logging.RetentionTarget{Dir: dir, Pattern: "streamsync-*.log", Keep: []string{active}})
	if removed != 1 {
		t.Fatalf("expected 1 file removed, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{active, fresh, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
	if logging.CleanupOldLogs(nil, 0, logging.RetentionTarget{Dir: dir}) != 0 {
		t.Fatal("retention 0 must disable pruning")
	}
}
