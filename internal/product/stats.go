package product

import (
	"time"

	"radarflow/internal/state"
)

// Result is the outcome of one candidate volume.
type Result struct {
	VolumeID string
	// Status is empty when the record was claimed elsewhere.
	Status    state.Status
	ErrorType string
	Duration  time.Duration
	Err       error
}

// CycleReport aggregates one cycle.
type CycleReport struct {
	Reset      int
	Candidates int
	Registered int
	Generated  int
	Failed     int
	Results    []Result
}

// Stats are cumulative counters since the daemon was built.
type Stats struct {
	ProductType       string
	Cycles            int64
	ProductsGenerated int64
	ProductsFailed    int64
	StuckReset        int64
	// Pending is the number of candidates seen by the last cycle.
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
	d.stats.ProductsGenerated += int64(report.Generated)
	d.stats.ProductsFailed += int64(report.Failed)
	d.stats.StuckReset += int64(report.Reset)
	d.stats.Pending = report.Candidates
	d.stats.LastCycle = d.now()
	d.stats.LastError = ""
	if err != nil {
		d.stats.LastError = err.Error()
	}
}

// StatsSnapshot implements workflow.StatsProvider.
func (d *Daemon) StatsSnapshot() any { return d.Stats() }
