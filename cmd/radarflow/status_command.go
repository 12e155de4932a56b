package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"radarflow/internal/daemon"
	"radarflow/internal/daemonctl"
	"radarflow/internal/deps"
	"radarflow/internal/state"
)

// staleSnapshotAfter marks a running daemon whose snapshot stopped updating.
const staleSnapshotAfter = time.Minute

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and state database status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := daemonctl.BuildStatus(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, st)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			writeSection(stdout, "System Status", colorize)
			fmt.Fprintln(stdout, daemonStatusLine(st, time.Now(), colorize))
			for _, check := range st.Checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			writeSection(stdout, "Dependencies", colorize)
			for _, line := range dependencyLines(st.Dependencies, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			if st.Snapshot != nil && len(st.Snapshot.Daemons) > 0 {
				writeSection(stdout, "Daemons", colorize)
				fmt.Fprint(stdout, renderTable(
					[]string{"Daemon", "Enabled", "Running", "Cycles", "Last Cycle", "Last Error"},
					buildDaemonRows(st.Snapshot.Daemons, time.Now()),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				fmt.Fprintln(stdout)
			}

			writeSection(stdout, "State Database", colorize)
			if st.CountsError != "" {
				fmt.Fprintln(stdout, renderStatusLine("Counts", statusError, st.CountsError, colorize))
				return nil
			}
			rows := buildCountRows(st.Counts)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "State database is empty")
				return nil
			}
			fmt.Fprint(stdout, renderTable([]string{"Table", "Status", "Count"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
}

func writeSection(out io.Writer, title string, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
}

func daemonStatusLine(st daemonctl.Status, now time.Time, colorize bool) string {
	if !st.Running {
		return renderStatusLine("Radarflow", statusWarn, "Not running", colorize)
	}
	if st.Snapshot == nil {
		return renderStatusLine("Radarflow", statusOK, "Running", colorize)
	}
	msg := fmt.Sprintf("Running (pid %d, up %s)", st.Snapshot.PID,
		strings.TrimSpace(humanize.RelTime(st.Snapshot.StartedAt, now, "", "")))
	if now.Sub(st.Snapshot.UpdatedAt) > staleSnapshotAfter {
		return renderStatusLine("Radarflow", statusWarn,
			msg+"; snapshot updated "+humanize.RelTime(st.Snapshot.UpdatedAt, now, "ago", "from now"), colorize)
	}
	return renderStatusLine("Radarflow", statusOK, msg, colorize)
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	if len(statuses) == 0 {
		return []string{renderStatusLine("Summary", statusInfo, "No collaborator commands required", colorize)}
	}
	lines := make([]string, 0, len(statuses)+1)
	missing := make([]string, 0)
	for _, dep := range statuses {
		if dep.Available {
			lines = append(lines, renderStatusLine(dep.Name, statusOK, fmt.Sprintf("Ready (command: %s)", dep.Command), colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		missing = append(missing, dep.Name)
	}
	summary := renderStatusLine("Summary", statusOK, "All collaborator commands available", colorize)
	if len(missing) > 0 {
		summary = renderStatusLine("Summary", statusError, "Missing: "+strings.Join(missing, ", "), colorize)
	}
	return append([]string{summary}, lines...)
}

func buildDaemonRows(daemons []daemon.DaemonSnapshot, now time.Time) [][]string {
	rows := make([][]string, 0, len(daemons))
	for _, d := range daemons {
		last := "never"
		if !d.LastCycle.IsZero() {
			last = humanize.RelTime(d.LastCycle, now, "ago", "from now")
		}
		rows = append(rows, []string{
			daemonLabel(d.Name),
			yesNo(d.Enabled),
			yesNo(d.Running),
			strconv.FormatInt(d.Cycles, 10),
			last,
			truncate(d.LastError, 60),
		})
	}
	return rows
}

func buildCountRows(counts state.Counts) [][]string {
	var rows [][]string
	add := func(table string, m map[string]int) {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rows = append(rows, []string{table, k, strconv.Itoa(m[k])})
		}
	}
	add("downloads", counts.Downloads)
	add("volumes", counts.Volumes)
	add("products", counts.Products)
	return rows
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
