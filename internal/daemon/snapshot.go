package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"radarflow/internal/state"
)

// Snapshot is the on-disk form of Status read by the CLI.
type Snapshot struct {
	Running   bool             `json:"running"`
	PID       int              `json:"pid"`
	StartedAt time.Time        `json:"started_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	StateDB   string           `json:"state_db"`
	Daemons   []DaemonSnapshot `json:"daemons"`
	Counts    state.Counts     `json:"counts"`
}

// DaemonSnapshot mirrors workflow.DaemonStatus with stats flattened to JSON.
type DaemonSnapshot struct {
	Name      string         `json:"name"`
	Enabled   bool           `json:"enabled"`
	Running   bool           `json:"running"`
	Cycles    int64          `json:"cycles"`
	LastCycle time.Time      `json:"last_cycle"`
	LastError string         `json:"last_error,omitempty"`
	Stats     map[string]any `json:"stats,omitempty"`
}

// WriteSnapshot atomically replaces path with st.
func WriteSnapshot(path string, st Status) error {
	snap := Snapshot{
		Running:   st.Running,
		PID:       st.PID,
		StartedAt: st.StartedAt,
		UpdatedAt: time.Now().UTC(),
		StateDB:   st.StateDBPath,
		Counts:    st.Counts,
	}
	for _, ds := range st.Daemons {
		entry := DaemonSnapshot{
			Name:      ds.Name,
			Enabled:   ds.Enabled,
			Running:   ds.Running,
			Cycles:    ds.Cycles,
			LastCycle: ds.LastCycle,
			LastError: ds.LastError,
		}
		if ds.Stats != nil {
			raw, err := json.Marshal(ds.Stats)
			if err == nil {
				_ = json.Unmarshal(raw, &entry.Stats)
			}
		}
		snap.Daemons = append(snap.Daemons, entry)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".status-*.json")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// ReadSnapshot loads the snapshot at path. A missing file returns nil, nil.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// LockHeld reports whether another process holds the daemon lock.
func LockHeld(lockPath string) (bool, error) {
	if _, err := os.Stat(lockPath); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	probe := flock.New(lockPath)
	ok, err := probe.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock: %w", err)
	}
	if ok {
		_ = probe.Unlock()
		return false, nil
	}
	return true, nil
}
