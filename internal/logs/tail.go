package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultPoll = 250 * time.Millisecond

// TailOptions controls Tail.
type TailOptions struct {
	// Lines is how many trailing lines to print first. Zero prints none.
	Lines  int
	Follow bool
	Poll   time.Duration
	// Match filters lines; nil accepts everything.
	Match func(line string) bool
}

// CurrentLogPath resolves the radarflow.log pointer in logDir.
func CurrentLogPath(logDir string) string {
	pointer := filepath.Join(logDir, "radarflow.log")
	if target, err := filepath.EvalSymlinks(pointer); err == nil {
		return target
	}
	return pointer
}

// Tail emits the trailing lines of the log in logDir and, when Follow is
// set, every matching line appended afterwards until ctx is done.
func Tail(ctx context.Context, logDir string, opts TailOptions, emit func(string)) error {
	if opts.Poll <= 0 {
		opts.Poll = defaultPoll
	}
	accept := opts.Match
	if accept == nil {
		accept = func(string) bool { return true }
	}

	path := CurrentLogPath(logDir)
	lines, offset, err := lastLines(path, opts.Lines, accept)
	if err != nil {
		return err
	}
	for _, line := range lines {
		emit(line)
	}
	if !opts.Follow {
		return nil
	}

	// Directory events wake the reader early; the ticker covers filesystems
	// where inotify is unavailable.
	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if watcher.Add(logDir) == nil {
			events, watchErrs = watcher.Events, watcher.Errors
		}
	}

	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
		case _, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
			}
			continue
		}
		if current := CurrentLogPath(logDir); current != path {
			path, offset = current, 0
		}
		offset, err = readFrom(path, offset, func(line string) {
			if accept(line) {
				emit(line)
			}
		})
		if err != nil {
			return err
		}
	}
}

// VolumeMatcher accepts lines mentioning volumeID, case-insensitively.
func VolumeMatcher(volumeID string) func(string) bool {
	needle := strings.ToLower(strings.TrimSpace(volumeID))
	if needle == "" {
		return nil
	}
	return func(line string) bool {
		return strings.Contains(strings.ToLower(line), needle)
	}
}

func lastLines(path string, limit int, accept func(string) bool) ([]string, int64, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var ring []string
	scanner := newScanner(file)
	for scanner.Scan() {
		if limit <= 0 || !accept(scanner.Text()) {
			continue
		}
		ring = append(ring, scanner.Text())
		if len(ring) > limit {
			ring = ring[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}
	return ring, offset, nil
}

// readFrom emits complete lines after offset and returns the offset of the
// first unread byte. A truncated file restarts from zero.
func readFrom(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// Partial trailing line: leave it for the next poll.
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		emit(strings.TrimRight(line, "\r\n"))
	}
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}
