package transport

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"time"
)

// ErrPartialListing is joined into Walk's error when some directories below
// the source root could not be listed. Entries found elsewhere are still
// returned.
var ErrPartialListing = errors.New("partial remote listing")

// Entry is a file found under a source's date hierarchy.
type Entry struct {
	Name       string
	RemotePath string
	// Slot is the time encoded by the YYYY/MM/DD/HH/MMSS directory path.
	Slot time.Time
}

type level int

const (
	levelYear level = iota
	levelMonth
	levelDay
	levelHour
	levelSlot
	levelFiles
)

// Walk lists every file under root/YYYY/MM/DD/HH/MMSS whose slot lies in
// [from, to]. A zero to leaves the window open. Directories entirely outside
// the window are never listed, and names that are not valid date components
// are skipped.
func Walk(ctx context.Context, client Client, root string, from, to time.Time) ([]Entry, error) {
	from = from.UTC()
	if !to.IsZero() {
		to = to.UTC()
	}
	w := &walker{client: client, from: from, to: to}

	names, err := client.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	w.descend(ctx, root, levelYear, time.Time{}, names)
	if len(w.errs) > 0 {
		return w.entries, errors.Join(append([]error{ErrPartialListing}, w.errs...)...)
	}
	return w.entries, nil
}

type walker struct {
	client  Client
	from    time.Time
	to      time.Time
	entries []Entry
	errs    []error
}

func (w *walker) descend(ctx context.Context, dir string, lvl level, parent time.Time, names []string) {
	if lvl == levelFiles {
		for _, name := range sortedNames(names) {
			w.entries = append(w.entries, Entry{Name: name, RemotePath: path.Join(dir, name), Slot: parent})
		}
		return
	}
	for _, name := range sortedNames(names) {
		if ctx.Err() != nil {
			w.errs = append(w.errs, ctx.Err())
			return
		}
		start, ok := childTime(lvl, parent, name)
		if !ok || !w.overlaps(lvl, start) {
			continue
		}
		child := path.Join(dir, name)
		children, err := w.client.List(ctx, child)
		if err != nil {
			w.errs = append(w.errs, fmt.Errorf("list %s: %w", child, err))
			continue
		}
		w.descend(ctx, child, lvl+1, start, children)
	}
}

// overlaps reports whether the directory starting at start intersects the window.
func (w *walker) overlaps(lvl level, start time.Time) bool {
	if !w.to.IsZero() && start.After(w.to) {
		return false
	}
	var end time.Time
	switch lvl {
	case levelYear:
		end = start.AddDate(1, 0, 0)
	case levelMonth:
		end = start.AddDate(0, 1, 0)
	case levelDay:
		end = start.AddDate(0, 0, 1)
	case levelHour:
		end = start.Add(time.Hour)
	case levelSlot:
		return !start.Before(w.from)
	}
	return end.After(w.from)
}

func childTime(lvl level, parent time.Time, name string) (time.Time, bool) {
	switch lvl {
	case levelYear:
		year, ok := digits(name, 4, 1, 9999)
		if !ok {
			return time.Time{}, false
		}
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), true
	case levelMonth:
		month, ok := digits(name, 2, 1, 12)
		if !ok {
			return time.Time{}, false
		}
		return time.Date(parent.Year(), time.Month(month), 1, 0, 0, 0, 0, time.UTC), true
	case levelDay:
		day, ok := digits(name, 2, 1, 31)
		if !ok {
			return time.Time{}, false
		}
		t := time.Date(parent.Year(), parent.Month(), day, 0, 0, 0, 0, time.UTC)
		if t.Month() != parent.Month() {
			return time.Time{}, false
		}
		return t, true
	case levelHour:
		hour, ok := digits(name, 2, 0, 23)
		if !ok {
			return time.Time{}, false
		}
		return parent.Add(time.Duration(hour) * time.Hour), true
	case levelSlot:
		if len(name) != 4 {
			return time.Time{}, false
		}
		minute, ok := digits(name[:2], 2, 0, 59)
		if !ok {
			return time.Time{}, false
		}
		second, ok := digits(name[2:], 2, 0, 59)
		if !ok {
			return time.Time{}, false
		}
		return parent.Add(time.Duration(minute)*time.Minute + time.Duration(second)*time.Second), true
	}
	return time.Time{}, false
}

func digits(name string, width, lo, hi int) (int, bool) {
	if len(name) != width {
		return 0, false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

func sortedNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if base := baseName(name); base != "" && base != "." && base != ".." {
			out = append(out, base)
		}
	}
	sort.Strings(out)
	return out
}
