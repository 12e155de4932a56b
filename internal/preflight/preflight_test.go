package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"radarflow/internal/config"
	"radarflow/internal/testsupport"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if r := CheckFreeSpace("disk", dir, 1); !r.Passed {
		t.Fatalf("expected pass: %s", r.Detail)
	}
	if r := CheckFreeSpace("disk", dir, 1<<62); r.Passed || !strings.Contains(r.Detail, "need") {
		t.Fatalf("expected shortfall: %+v", r)
	}
	if r := CheckFreeSpace("disk", filepath.Join(dir, "missing"), 1); r.Passed {
		t.Fatal("expected statfs failure")
	}
}

func TestCheckFTP(t *testing.T) {
	cfg := config.FTP{Host: "ftp.example", Port: 21}
	if r := CheckFTP(context.Background(), cfg, stubPinger{}); !r.Passed || !strings.Contains(r.Detail, "ftp.example:21") {
		t.Fatalf("unexpected result: %+v", r)
	}
	r := CheckFTP(context.Background(), cfg, stubPinger{err: context.DeadlineExceeded})
	if r.Passed || !strings.Contains(r.Detail, "timed out") {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r := CheckFTP(context.Background(), cfg, nil); r.Passed {
		t.Fatal("nil client must fail")
	}
}

func TestRunAllSkipsDisabledDaemons(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("radar-decode"))
	cfg.Download.Enabled = false
	cfg.Products.Enabled = false
	cfg.Processing.DecodeCommand = []string{"radar-decode"}

	results := RunAll(context.Background(), cfg, stubPinger{err: errors.New("unused")})
	for _, r := range results {
		if r.Name == "FTP server" || r.Name == "Renderer" {
			t.Fatalf("disabled daemon checked: %+v", r)
		}
	}
	var sawDecoder bool
	for _, r := range results {
		if r.Name == "Decoder" {
			sawDecoder = r.Passed
		}
	}
	if !sawDecoder {
		t.Fatalf("decoder stub not found: %+v", results)
	}
}

func TestFailed(t *testing.T) {
	got := Failed([]Result{{Name: "a", Passed: true}, {Name: "b"}})
	if len(got) != 1 || got[0].Name != "b" {
		t.Fatalf("unexpected failures: %+v", got)
	}
}
