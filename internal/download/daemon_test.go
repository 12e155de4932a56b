package download_test

import (
	"context"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"radarflow/internal/config"
	"radarflow/internal/download"
	"radarflow/internal/logging"
	"radarflow/internal/state"
	"radarflow/internal/testsupport"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

const root = "/L2/RMA1"

func noSleepPolicy(attempts int) download.RetryPolicy {
	return download.RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func newDaemon(t *testing.T, cfg *config.Config, fake *testsupport.FakeTransport, opts ...download.Option) (*download.Daemon, *state.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	opts = append([]download.Option{download.WithRetryPolicy(noSleepPolicy(3))}, opts...)
	return download.New(cfg, store, fake, logging.NewNop(), opts...), store
}

func TestSyncDownloadsMatchingFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeTransport()
	dbzh := testsupport.RadarName("RMA1", "0315", "01", "DBZH", t0)
	vrad := testsupport.RadarName("RMA1", "0315", "01", "VRAD", t0)
	fake.AddRadarFile(root, dbzh, t0)
	fake.AddRadarFile(root, vrad, t0)
	fake.AddFile(root+"/2025/01/01/12/0000/README.txt", []byte("x"))

	var callbacks atomic.Int32
	daemon, store := newDaemon(t, cfg, fake, download.WithOnDownloaded(func(context.Context, state.Download) {
		callbacks.Add(1)
	}))

	report, err := daemon.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Downloaded != 1 || report.Failed != 0 || report.Ignored != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if callbacks.Load() != 1 {
		t.Fatalf("expected one callback, got %d", callbacks.Load())
	}
	if fake.Attempts(path.Join(root, "2025/01/01/12/0000", vrad)) != 0 {
		t.Fatal("file outside the grammar must not be fetched")
	}

	rec, err := store.GetDownload(context.Background(), dbzh)
	if err != nil || rec == nil {
		t.Fatalf("GetDownload: %+v %v", rec, err)
	}
	if rec.Status != state.DownloadCompleted || rec.FieldType != "DBZH" || rec.Strategy != "0315" || rec.VolNr != "01" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !strings.HasSuffix(rec.LocalPath, "/bufr/RMA1/20250101/"+dbzh) || len(rec.Checksum) != 64 {
		t.Fatalf("unexpected local path or checksum: %+v", rec)
	}
	if _, err := os.Stat(rec.LocalPath + ".part"); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}

	again, err := daemon.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if again.Downloaded != 0 || again.Skipped != 1 {
		t.Fatalf("second cycle should skip the downloaded file: %+v", again)
	}

	stats := daemon.Stats()
	if stats.Cycles != 2 || stats.FilesDownloaded != 1 || stats.BytesDownloaded == 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSyncRecordsFailureAfterRetries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeTransport()
	name := testsupport.RadarName("RMA1", "0315", "01", "DBZH", t0)
	remote := fake.AddRadarFile(root, name, t0)
	fake.FailDownloads(remote, -1)

	daemon, store := newDaemon(t, cfg, fake)
	report, err := daemon.Sync(context.Background())
	if err != nil {
		t.Fatalf("per-file failure must not fail the cycle: %v", err)
	}
	if report.Failed != 1 || len(report.Results) != 1 || report.Results[0].Attempts != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if fake.Attempts(remote) != 3 {
		t.Fatalf("expected 3 transport attempts, got %d", fake.Attempts(remote))
	}
	rec, _ := store.GetDownload(context.Background(), name)
	if rec == nil || rec.Status != state.DownloadFailed {
		t.Fatalf("expected failed record, got %+v", rec)
	}

	// A failed record is not a completed download, so the next cycle retries it.
	fake.FailDownloads(remote, 0)
	report, _ = daemon.Sync(context.Background())
	if report.Downloaded != 1 {
		t.Fatalf("expected retry to succeed next cycle: %+v", report)
	}
}

func TestSyncRecoversFromTransientFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeTransport()
	name := testsupport.RadarName("RMA1", "0315", "01", "DBZH", t0)
	remote := fake.AddRadarFile(root, name, t0)
	fake.FailDownloads(remote, 2)

	daemon, _ := newDaemon(t, cfg, fake)
	report, err := daemon.Sync(context.Background())
	if err != nil || report.Downloaded != 1 || report.Results[0].Attempts != 3 {
		t.Fatalf("expected success on final attempt: %+v %v", report, err)
	}
}

func TestSyncBoundsConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Download.MaxConcurrent = 3
	cfg.Sources[0].VolumeTypes = map[string]map[string][]string{
		"0315": {"01": {"DBZH"}},
	}
	fake := testsupport.NewFakeTransport()
	fake.Delay = 20 * time.Millisecond
	for i := 0; i < 12; i++ {
		obs := t0.Add(time.Duration(i) * time.Minute)
		fake.AddRadarFile(root, testsupport.RadarName("RMA1", "0315", "01", "DBZH", obs), obs)
	}

	daemon, _ := newDaemon(t, cfg, fake)
	report, err := daemon.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Downloaded != 12 {
		t.Fatalf("expected 12 downloads, got %+v", report)
	}
	if got := fake.MaxInFlight(); got > 3 || got < 1 {
		t.Fatalf("in-flight downloads exceeded limit: %d", got)
	}
}

func TestSyncNeverScansBeforeResumePoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeTransport()
	early := testsupport.RadarName("RMA1", "0315", "01", "DBZH", t0)
	late := testsupport.RadarName("RMA1", "0315", "01", "DBZH", t0.Add(2*time.Hour))
	earlyRemote := fake.AddRadarFile(root, early, t0)
	fake.AddRadarFile(root, late, t0.Add(2*time.Hour))

	daemon, store := newDaemon(t, cfg, fake)
	latest := t0.Add(time.Hour)
	testsupport.MarkDownloaded(t, store, cfg, testsupport.RadarName("RMA1", "0315", "01", "DBZV", latest))

	resume, _, err := daemon.ResumePoint(context.Background(), "RMA1")
	if err != nil || !resume.Equal(latest) {
		t.Fatalf("resume point = %v, %v; want %v", resume, err, latest)
	}

	report, err := daemon.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Downloaded != 1 || fake.Attempts(earlyRemote) != 0 {
		t.Fatalf("file before the resume point was fetched: %+v", report)
	}
	for _, dir := range fake.Listed() {
		if strings.HasPrefix(dir, root+"/2025/01/01/12") {
			t.Fatalf("listed directory before resume point: %s", dir)
		}
	}
}

func TestSyncStopsAtEndDate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Download.EndDate = "2025-01-01T12:30:00Z"
	fake := testsupport.NewFakeTransport()
	inside := testsupport.RadarName("RMA1", "0315", "01", "DBZH", t0)
	outside := testsupport.RadarName("RMA1", "0315", "01", "DBZH", t0.Add(time.Hour))
	fake.AddRadarFile(root, inside, t0)
	outsideRemote := fake.AddRadarFile(root, outside, t0.Add(time.Hour))

	daemon, _ := newDaemon(t, cfg, fake)
	report, err := daemon.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Downloaded != 1 || fake.Attempts(outsideRemote) != 0 {
		t.Fatalf("end date not honoured: %+v", report)
	}
}

func TestSyncReportsFinishedSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Download.StartDate = "2025-01-01T10:00:00Z"
	cfg.Download.EndDate = "2025-01-01T11:00:00Z"
	fake := testsupport.NewFakeTransport()

	daemon, store := newDaemon(t, cfg, fake)
	testsupport.MarkDownloaded(t, store, cfg, testsupport.RadarName("RMA1", "0315", "01", "DBZH", t0))

	report, err := daemon.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(report.Finished) != 1 || report.Finished[0] != "RMA1" {
		t.Fatalf("expected RMA1 to be finished: %+v", report)
	}
	if len(fake.Listed()) != 0 {
		t.Fatalf("finished source must not be listed: %v", fake.Listed())
	}
}

func TestSyncSurfacesScanFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeTransport()
	fake.FailList(root)

	daemon, _ := newDaemon(t, cfg, fake)
	if _, err := daemon.Sync(context.Background()); err == nil {
		t.Fatal("expected scan failure to be reported")
	}
	if daemon.Stats().LastError == "" {
		t.Fatal("expected last error in stats")
	}
}

func TestVerifyChecksumsRefetchesCorruptCopy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Download.VerifyChecksums = true
	fake := testsupport.NewFakeTransport()
	name := testsupport.RadarName("RMA1", "0315", "01", "DBZH", t0)
	remote := fake.AddRadarFile(root, name, t0)

	daemon, store := newDaemon(t, cfg, fake)
	if _, err := daemon.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	rec, _ := store.GetDownload(context.Background(), name)
	if err := os.WriteFile(rec.LocalPath, []byte("corrupt"), 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}

	report, err := daemon.Sync(context.Background())
	if err != nil || report.Downloaded != 1 {
		t.Fatalf("expected corrupt copy to be fetched again: %+v %v", report, err)
	}
	if fake.Attempts(remote) != 2 {
		t.Fatalf("expected 2 transfers, got %d", fake.Attempts(remote))
	}
}

func TestDefaultStartIsFixedAcrossOutage(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStartDate(""))
	clock := testsupport.NewClock(time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC))
	fake := testsupport.NewFakeTransport()
	first := time.Date(2025, 1, 1, 10, 29, 0, 0, time.UTC)
	fake.AddRadarFile(root, testsupport.RadarName("RMA1", "0315", "01", "DBZH", first), first)

	daemon, _ := newDaemon(t, cfg, fake, download.WithClock(clock.Now))
	report, err := daemon.Sync(context.Background())
	if err != nil || report.Downloaded != 1 {
		t.Fatalf("first Sync: %+v, %v", report, err)
	}

	published := time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)
	remote := fake.AddRadarFile(root, testsupport.RadarName("RMA1", "0315", "01", "DBZH", published), published)
	clock.Advance(3*time.Hour + 25*time.Minute)

	resume, _, err := daemon.ResumePoint(context.Background(), "RMA1")
	if err != nil || !resume.Equal(first) {
		t.Fatalf("resume after outage = %v, %v; want %v", resume, err, first)
	}
	report, err = daemon.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Downloaded != 1 || fake.Attempts(remote) == 0 {
		t.Fatalf("file published during the outage was not fetched: %+v", report)
	}
}
