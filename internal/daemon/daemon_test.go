package daemon_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"radarflow/internal/config"
	"radarflow/internal/daemon"
	"radarflow/internal/logging"
	"radarflow/internal/testsupport"
	"radarflow/internal/workflow"
)

type idleDaemon struct{}

func (idleDaemon) Name() string                   { return workflow.KindDownload }
func (idleDaemon) PollInterval() time.Duration    { return time.Hour }
func (idleDaemon) RunCycle(context.Context) error { return nil }
func (idleDaemon) StatsSnapshot() any {
	return struct{ FilesDownloaded int }{FilesDownloaded: 3}
}

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, workflow.Factories{
		Download: func(*config.Config) (workflow.Daemon, error) { return idleDaemon{}, nil },
	}, logging.NewNop())
	d, err := daemon.New(cfg, store, logging.NewNop(), mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	t.Cleanup(d.Stop)

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running || len(status.Daemons) != 3 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if held, err := daemon.LockHeld(cfg.LockPath()); err != nil || !held {
		t.Fatalf("lock should be held: %v %v", held, err)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if held, _ := daemon.LockHeld(cfg.LockPath()); held {
		t.Fatal("lock still held after Stop")
	}

	snap, err := daemon.ReadSnapshot(cfg.StatusPath())
	if err != nil || snap == nil {
		t.Fatalf("ReadSnapshot: %v %v", snap, err)
	}
	if snap.Running || len(snap.Daemons) != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if got := snap.Daemons[0].Stats["FilesDownloaded"]; got != float64(3) {
		t.Fatalf("stats not flattened: %v", snap.Daemons[0].Stats)
	}
}

func TestSecondInstanceRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	second := newDaemon(t, cfg)
	t.Cleanup(first.Stop)

	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance must not start")
	}
}

func TestReadSnapshotMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	snap, err := daemon.ReadSnapshot(cfg.StatusPath())
	if err != nil || snap != nil {
		t.Fatalf("expected nil snapshot, got %+v %v", snap, err)
	}
}

type slowDaemon struct {
	started chan struct{}
	once    sync.Once
	result  chan error
}

func (s *slowDaemon) Name() string                { return workflow.KindProcessing }
func (s *slowDaemon) PollInterval() time.Duration { return time.Hour }
func (s *slowDaemon) RunCycle(ctx context.Context) error {
	s.once.Do(func() { close(s.started) })
	select {
	case <-time.After(300 * time.Millisecond):
		s.result <- nil
	case <-ctx.Done():
		s.result <- ctx.Err()
	}
	return nil
}

func TestStopLetsInFlightCycleFinishAfterSignal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Download.Enabled = false
	cfg.Products.Enabled = false
	cfg.Workflow.ShutdownTimeout = 30

	slow := &slowDaemon{started: make(chan struct{}), result: make(chan error, 4)}
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, workflow.Factories{
		Processing: func(*config.Config) (workflow.Daemon, error) { return slow, nil },
	}, logging.NewNop())
	d, err := daemon.New(cfg, store, logging.NewNop(), mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	signalCtx, cancel := context.WithCancel(context.Background())
	if err := d.Start(signalCtx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-slow.started
	cancel()
	d.Stop()

	select {
	case err := <-slow.result:
		if err != nil {
			t.Fatalf("in-flight cycle was cancelled by the signal: %v", err)
		}
	default:
		t.Fatal("Stop returned before the cycle finished")
	}
}
