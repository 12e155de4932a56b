package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"radarflow/internal/config"
	"radarflow/internal/daemon"
	"radarflow/internal/deps"
	"radarflow/internal/preflight"
	"radarflow/internal/state"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// ErrDaemonNotRunning indicates no process holds the daemon lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Launch starts a detached radarflow daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForLock polls until the daemon lock is held (want=true) or released.
func WaitForLock(lockPath string, want bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		held, err := daemon.LockHeld(lockPath)
		if err == nil && held == want {
			return nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return err
			}
			if want {
				return fmt.Errorf("daemon failed to start within %s", timeout)
			}
			return fmt.Errorf("daemon did not stop within %s", timeout)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// EnsureStarted launches the daemon unless one already holds the lock.
func EnsureStarted(cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	held, err := daemon.LockHeld(cfg.LockPath())
	if err != nil {
		return StartResult{}, err
	}
	if held {
		return StartResult{State: StartStateAlreadyRunning, PID: snapshotPID(cfg)}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	if err := WaitForLock(cfg.LockPath(), true, waitTimeout); err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: snapshotPID(cfg)}, nil
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Stop sends SIGTERM to the running daemon and escalates to SIGKILL when the
// lock is still held after gracePeriod.
func Stop(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	held, err := daemon.LockHeld(cfg.LockPath())
	if err != nil {
		return StopResult{}, err
	}
	if !held {
		return StopResult{}, ErrDaemonNotRunning
	}
	pid := snapshotPID(cfg)
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("unable to determine daemon pid from %s", cfg.StatusPath())
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	result := StopResult{PID: pid}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	if err := WaitForLock(cfg.LockPath(), false, gracePeriod); err == nil {
		return result, nil
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	result.ForcedKill = true
	return result, nil
}

func snapshotPID(cfg *config.Config) int {
	snap, err := daemon.ReadSnapshot(cfg.StatusPath())
	if err != nil || snap == nil {
		return 0
	}
	return snap.PID
}

// Status is the CLI view of the daemon and the state database.
type Status struct {
	Running      bool
	Snapshot     *daemon.Snapshot
	Counts       state.Counts
	CountsError  string
	Checks       []preflight.Result
	Dependencies []deps.Status
}

// BuildStatus combines the lock probe, the last status snapshot, the store
// counts, and the local preflight checks. The FTP check is skipped so status
// never blocks on the network.
func BuildStatus(ctx context.Context, cfg *config.Config) (Status, error) {
	var st Status
	held, err := daemon.LockHeld(cfg.LockPath())
	if err != nil {
		return st, err
	}
	st.Running = held

	snap, err := daemon.ReadSnapshot(cfg.StatusPath())
	if err != nil {
		return st, err
	}
	st.Snapshot = snap

	if _, statErr := os.Stat(cfg.StatePath()); statErr == nil {
		store, err := state.Open(cfg)
		if err != nil {
			st.CountsError = err.Error()
		} else {
			counts, err := store.Counts(ctx)
			if err != nil {
				st.CountsError = err.Error()
			}
			st.Counts = counts
			_ = store.Close()
		}
	}

	st.Checks = []preflight.Result{
		preflight.CheckDirectoryAccess("Data directory", cfg.Paths.BaseDir),
		preflight.CheckFreeSpace("Disk space", cfg.Paths.BaseDir, preflight.MinFreeBytes),
	}
	if cfg.Paths.LogDir != "" {
		st.Checks = append(st.Checks, preflight.CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	st.Dependencies = deps.Check(cfg)
	return st, nil
}
