package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"radarflow/internal/config"
	"radarflow/internal/logging"
	"radarflow/internal/services"
)

func TestFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "json"
	logPath := filepath.Join(t.TempDir(), "logs", "radarflowd-test.log")

	opts := logging.FromConfig(&cfg, logPath)
	if len(opts.Outputs) != 2 || opts.Outputs[0] != "stdout" {
		t.Fatalf("unexpected outputs: %v", opts.Outputs)
	}
	opts.Outputs = opts.Outputs[1:]
	logger, err := logging.New(opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	observed := time.Date(2025, 1, 1, 9, 0, 0, 0, time.FixedZone("ART", -3*3600))
	logger.Info("hello from test", logging.Time("observed", observed))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from test") {
		t.Fatalf("expected message in log file, got %q", content)
	}
	if !strings.Contains(string(content), `"observed":"2025-01-01T12:00:00Z"`) {
		t.Fatalf("expected UTC observation time, got %q", content)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := logging.New(logging.Options{Level: "verbose"}); err == nil {
		t.Fatal("expected error for unsupported level")
	}
}

func TestConsoleLoggerPrefixesComponentAndSource(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format:  "console",
		Level:   "info",
		Outputs: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithSource(context.Background(), "RMA1")
	ctx = services.WithVolumeID(ctx, "RMA1_0315_01_x")
	component := logging.NewComponentLogger(logger, "download")
	logging.WithContext(ctx, component).Info("file downloaded", logging.String(logging.FieldFilename, "a b.BUFR"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "INFO download[RMA1]: file downloaded") {
		t.Fatalf("expected component/source prefix, got %q", line)
	}
	if !strings.Contains(line, `filename="a b.BUFR"`) {
		t.Fatalf("expected quoted filename, got %q", line)
	}
	if !strings.Contains(line, "volume_id=RMA1_0315_01_x") {
		t.Fatalf("expected volume id attribute, got %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "stuck volumes reset", "stuck_reset")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if record["level"] != "warn" {
		t.Fatalf("unexpected level: %v", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if _, ok := record[key]; !ok {
			t.Fatalf("expected %s to be injected, got %v", key, record)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestPruneLogsKeepsCurrentAndRecent(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "radarflowd-old.log")
	recent := filepath.Join(dir, "radarflowd-recent.log")
	current := filepath.Join(dir, "radarflowd-current.log")
	for _, path := range []string{old, recent, current} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, current} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.PruneLogs(logging.NewNop(), dir, "radarflowd-*.log", current, 5)
	if removed != 1 {
		t.Fatalf("expected one file removed, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{recent, current} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
}
