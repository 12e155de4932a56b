package main

import (
	"testing"
	"time"
)

func TestStopWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"stop"}, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestStopGracePeriod(t *testing.T) {
	if got := stopGracePeriod(30); got != 35*time.Second {
		t.Fatalf("grace period = %s", got)
	}
}
