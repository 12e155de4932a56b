package testsupport

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"radarflow/internal/config"
	"radarflow/internal/grammar"
	"radarflow/internal/state"
)

// MustOpenStore opens a state.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...state.Option) *state.Store {
	t.Helper()

	store, err := state.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// RadarName builds a file name following the radar naming convention.
func RadarName(source, strategy, volNr, field string, observed time.Time) string {
	return source + "_" + strategy + "_" + volNr + "_" + field + "_" + observed.UTC().Format("20060102T150405Z") + ".BUFR"
}

// MarkDownloaded records a completed download for name, writing a small local
// file under the config's BUFR directory.
func MarkDownloaded(t testing.TB, store *state.Store, cfg *config.Config, name string) state.Download {
	t.Helper()

	parsed, err := grammar.ParseFilename(name)
	if err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	local := filepath.Join(cfg.BUFRDir(), parsed.Source, parsed.Observed.Format("20060102"), name)
	WriteFile(t, local, 16)
	d := state.Download{
		Filename:   name,
		RemotePath: "/L2/" + parsed.Source + "/" + name,
		LocalPath:  local,
		Size:       16,
		Source:     parsed.Source,
		Strategy:   parsed.Strategy,
		VolNr:      parsed.VolNr,
		FieldType:  parsed.Field,
		Observed:   parsed.Observed,
	}
	if err := store.MarkDownloaded(context.Background(), d); err != nil {
		t.Fatalf("MarkDownloaded %s: %v", name, err)
	}
	return d
}

// ProcessedVolume registers a complete RMA1 0315/01 volume observed at
// observed and marks it processed with artifactPath. The artifact file itself
// is left to the caller.
func ProcessedVolume(t testing.TB, store *state.Store, observed time.Time, artifactPath string) state.Volume {
	t.Helper()

	ctx := context.Background()
	id := grammar.VolumeID("RMA1", "0315", "01", observed)
	fields := []string{"DBZH", "DBZV"}
	if _, err := store.RegisterVolume(ctx, state.NewVolume{
		VolumeID:         id,
		Source:           "RMA1",
		Strategy:         "0315",
		VolNr:            "01",
		Observed:         observed,
		IsComplete:       true,
		ExpectedFields:   fields,
		DownloadedFields: fields,
	}); err != nil {
		t.Fatalf("RegisterVolume %s: %v", id, err)
	}
	if ok, err := store.ClaimVolume(ctx, id); err != nil || !ok {
		t.Fatalf("ClaimVolume %s: %v %v", id, ok, err)
	}
	if err := store.MarkVolumeCompleted(ctx, id, artifactPath); err != nil {
		t.Fatalf("MarkVolumeCompleted %s: %v", id, err)
	}
	v, err := store.GetVolume(ctx, id)
	if err != nil || v == nil {
		t.Fatalf("GetVolume %s: %v", id, err)
	}
	return *v
}
