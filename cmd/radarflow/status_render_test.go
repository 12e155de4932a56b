package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"radarflow/internal/daemon"
	"radarflow/internal/daemonctl"
	"radarflow/internal/deps"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Radarflow", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Radarflow:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Radarflow", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	lines := dependencyLines([]deps.Status{
		{Name: "Decoder", Available: true, Command: "radar-decode"},
		{Name: "Renderer", Available: false, Detail: `binary "radar-render" not found`},
	}, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "[ERROR] Missing: Renderer") {
		t.Fatalf("unexpected summary %q", lines[0])
	}
	if !strings.Contains(lines[1], "[OK] Ready (command: radar-decode)") {
		t.Fatalf("unexpected decoder line %q", lines[1])
	}
}

func TestDaemonStatusLine(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := daemonStatusLine(daemonctl.Status{}, now, false); !strings.Contains(got, "Not running") {
		t.Fatalf("unexpected line %q", got)
	}
	st := daemonctl.Status{Running: true, Snapshot: &daemon.Snapshot{
		PID: 42, StartedAt: now.Add(-2 * time.Hour), UpdatedAt: now.Add(-10 * time.Minute),
	}}
	got := daemonStatusLine(st, now, false)
	if !strings.Contains(got, "[WARN]") || !strings.Contains(got, "pid 42") {
		t.Fatalf("stale snapshot should warn, got %q", got)
	}
}

func TestDaemonRows(t *testing.T) {
	rows := buildDaemonRows([]daemon.DaemonSnapshot{{Name: "processing", Enabled: true, Cycles: 3}}, time.Now())
	if rows[0][0] != "Processing" || rows[0][3] != "3" || rows[0][4] != "never" {
		t.Fatalf("unexpected row %v", rows[0])
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "Not running")
	requireContains(t, out, "State Database")
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatal("expected non-file writer to disable color")
	}
}
