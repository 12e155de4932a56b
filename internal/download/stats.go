package download

import (
	"maps"
	"time"

	"radarflow/internal/state"
)

// Result is the outcome of one candidate file.
type Result struct {
	Filename string
	Source   string
	// Status is empty when nothing was recorded, e.g. on shutdown.
	Status   state.DownloadStatus
	Attempts int
	Bytes    int64
	Err      error
}

// CycleReport aggregates one cycle.
type CycleReport struct {
	// Discovered counts grammar-matching files inside the window.
	Discovered int
	// Ignored counts names rejected by the grammar.
	Ignored int
	// Skipped counts files already downloaded.
	Skipped    int
	Downloaded int
	Failed     int
	Bytes      int64
	// Finished lists sources whose resume point passed end_date.
	Finished []string
	Results  []Result
}

func (r *CycleReport) add(res Result) {
	r.Results = append(r.Results, res)
	switch res.Status {
	case state.DownloadCompleted:
		r.Downloaded++
		r.Bytes += res.Bytes
	case state.DownloadFailed, state.DownloadPartial:
		r.Failed++
	}
}

// Stats are cumulative counters since the daemon was built.
type Stats struct {
	Cycles            int64
	FilesDownloaded   int64
	FilesFailed       int64
	BytesDownloaded   int64
	LastCycle         time.Time
	LastCycleDuration time.Duration
	LastError         string
	ResumePoints      map[string]time.Time
	FinishedSources   []string
}

// Stats returns a snapshot of the cumulative counters.
func (d *Daemon) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.stats
	out.ResumePoints = maps.Clone(d.stats.ResumePoints)
	out.FinishedSources = append([]string(nil), d.stats.FinishedSources...)
	return out
}

func (d *Daemon) recordCycle(report CycleReport, elapsed time.Duration, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Cycles++
	d.stats.FilesDownloaded += int64(report.Downloaded)
	d.stats.FilesFailed += int64(report.Failed)
	d.stats.BytesDownloaded += report.Bytes
	d.stats.LastCycle = d.now()
	d.stats.LastCycleDuration = elapsed
	d.stats.FinishedSources = report.Finished
	d.stats.LastError = ""
	if err != nil {
		d.stats.LastError = err.Error()
	}
}

func (d *Daemon) setResumePoint(source string, t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stats.ResumePoints == nil {
		d.stats.ResumePoints = make(map[string]time.Time)
	}
	d.stats.ResumePoints[source] = t
}

// StatsSnapshot implements workflow.StatsProvider.
func (d *Daemon) StatsSnapshot() any { return d.Stats() }
