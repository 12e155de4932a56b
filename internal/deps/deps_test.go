package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"radarflow/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable: %#v", results[1])
	}
	if results[2].Available || !strings.HasPrefix(results[2].Detail, "command not configured") {
		t.Fatalf("unexpected unset result: %#v", results[2])
	}
}

func TestRequirementsFollowEnabledDaemons(t *testing.T) {
	cfg := config.Default()
	cfg.Processing.DecodeCommand = []string{"radar-decode", "--out", "{output_dir}"}
	cfg.Products.Enabled = false

	reqs := Requirements(&cfg)
	if len(reqs) != 1 || reqs[0].Command != "radar-decode" || reqs[0].Key != "processing.decode_command" {
		t.Fatalf("unexpected requirements: %#v", reqs)
	}
}

func TestCheckNamesConfigKeyWhenUnset(t *testing.T) {
	cfg := config.Default()
	cfg.Processing.Enabled = false

	statuses := Check(&cfg)
	if len(statuses) != 1 || statuses[0].Available {
		t.Fatalf("unexpected statuses: %#v", statuses)
	}
	if !strings.Contains(statuses[0].Detail, "products.render_command") {
		t.Fatalf("detail should name the config key: %q", statuses[0].Detail)
	}
}
