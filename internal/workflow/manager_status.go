package workflow

import "time"

// DaemonStatus is the last known state of one daemon.
type DaemonStatus struct {
	Name      string
	Enabled   bool
	Running   bool
	Cycles    int64
	LastCycle time.Time
	LastError string
	// Stats holds the daemon's own counters when it implements StatsProvider.
	Stats any
}

// Status reports every daemon kind in start order. Stopped daemons keep
// reporting the counters of their last run.
func (m *Manager) Status() []DaemonStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]DaemonStatus, 0, len(kindOrder))
	for _, kind := range kindOrder {
		st := DaemonStatus{Name: kind, Enabled: m.enabled(kind)}
		l := m.lanes[kind]
		if l == nil {
			l = m.stopped[kind]
		}
		if l != nil {
			st.Running = l.running() && m.lanes[kind] != nil
			l.mu.Lock()
			st.Cycles = l.cycles
			st.LastCycle = l.lastCycle
			if l.lastErr != nil {
				st.LastError = l.lastErr.Error()
			}
			l.mu.Unlock()
			if sp, ok := l.daemon.(StatsProvider); ok {
				st.Stats = sp.StatsSnapshot()
			}
		}
		out = append(out, st)
	}
	return out
}
