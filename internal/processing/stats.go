package processing

import (
	"time"

	"radarflow/internal/state"
)

// Result is the outcome of one pending volume.
type Result struct {
	VolumeID string
	// Status is empty when another worker claimed the volume first, and
	// processing when shutdown interrupted it.
	Status       state.Status
	ArtifactPath string
	Duration     time.Duration
	Err          error
}

// CycleReport aggregates one cycle.
type CycleReport struct {
	Reset         int
	Registered    int
	NewlyComplete int
	Incomplete    int
	Pending       int
	Processed     int
	Failed        int
	Results       []Result
}

// Stats are cumulative counters since the daemon was built, plus the
// backlog seen by the last cycle.
type Stats struct {
	Cycles           int64
	VolumesProcessed int64
	VolumesFailed    int64
	StuckReset       int64
	// IncompleteDetected is the number of incomplete volumes seen last cycle.
	IncompleteDetected int
	// Pending is the number of volumes eligible for processing last cycle.
	Pending   int
	LastCycle time.Time
	LastError string
}

// Stats returns a snapshot of the cumulative counters.
func (d *Daemon) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Daemon) recordCycle(report CycleReport, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Cycles++
	d.stats.VolumesProcessed += int64(report.Processed)
	d.stats.VolumesFailed += int64(report.Failed)
	d.stats.StuckReset += int64(report.Reset)
	d.stats.IncompleteDetected = report.Incomplete
	d.stats.Pending = report.Pending
	d.stats.LastCycle = d.now()
	d.stats.LastError = ""
	if err != nil {
		d.stats.LastError = err.Error()
	}
}

// StatsSnapshot implements workflow.StatsProvider.
func (d *Daemon) StatsSnapshot() any { return d.Stats() }
