package preflight

import (
	"context"

	"radarflow/internal/config"
)

// MinFreeBytes is the free space required under base_dir.
const MinFreeBytes = 1 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config. ftp
// may be nil when the download daemon is disabled.
func RunAll(ctx context.Context, cfg *config.Config, ftp Pinger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.BaseDir),
		CheckFreeSpace("Disk space", cfg.Paths.BaseDir, MinFreeBytes),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	if cfg.Download.Enabled {
		results = append(results, CheckFTP(ctx, cfg.FTP, ftp))
	}
	for _, st := range CheckSystemDeps(cfg) {
		r := Result{Name: st.Name, Passed: st.Available, Detail: st.Command}
		if !st.Available {
			r.Detail = st.Detail
		}
		results = append(results, r)
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
