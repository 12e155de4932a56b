package testsupport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrFakeTransport is returned by scripted FakeTransport failures.
var ErrFakeTransport = errors.New("fake transport failure")

// FakeTransport is an in-memory remote tree implementing transport.Client.
type FakeTransport struct {
	mu        sync.Mutex
	files     map[string][]byte
	failures  map[string]int
	listFails map[string]bool
	listed    []string
	attempts  map[string]int

	// Delay is slept inside every Download so concurrency can be observed.
	Delay time.Duration

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// NewFakeTransport returns an empty remote tree.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		files:     make(map[string][]byte),
		failures:  make(map[string]int),
		listFails: make(map[string]bool),
		attempts:  make(map[string]int),
	}
}

// AddFile places content at the absolute remote path p.
func (f *FakeTransport) AddFile(p string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path.Clean("/"+p)] = content
}

// AddRadarFile places name under root/YYYY/MM/DD/HH/MMSS using observed for the
// directory components and returns the remote path.
func (f *FakeTransport) AddRadarFile(root, name string, observed time.Time) string {
	remote := path.Join(root, observed.UTC().Format("2006/01/02/15/0405"), name)
	f.AddFile(remote, []byte("BUFR:"+name))
	return remote
}

// FailDownloads makes the next n downloads of remote fail. A negative n fails forever.
func (f *FakeTransport) FailDownloads(remote string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path.Clean(remote)] = n
}

// FailList makes every listing of dir fail.
func (f *FakeTransport) FailList(dir string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFails[path.Clean(dir)] = true
}

// List implements transport.Client.
func (f *FakeTransport) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir = path.Clean("/" + dir)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed = append(f.listed, dir)
	if f.listFails[dir] {
		return nil, fmt.Errorf("%w: list %s", ErrFakeTransport, dir)
	}

	prefix := strings.TrimSuffix(dir, "/") + "/"
	seen := make(map[string]struct{})
	for p := range f.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		child, _, _ := strings.Cut(rest, "/")
		seen[child] = struct{}{}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("%w: %s: no such directory", ErrFakeTransport, dir)
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Download implements transport.Client.
func (f *FakeTransport) Download(ctx context.Context, remotePath, localPath string) (int64, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxInFlight.Load()
		if current <= prev || f.maxInFlight.CompareAndSwap(prev, current) {
			break
		}
	}

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	remotePath = path.Clean(remotePath)
	f.mu.Lock()
	f.attempts[remotePath]++
	if n, ok := f.failures[remotePath]; ok && n != 0 {
		if n > 0 {
			f.failures[remotePath] = n - 1
		}
		f.mu.Unlock()
		return 0, fmt.Errorf("%w: retr %s", ErrFakeTransport, remotePath)
	}
	content, ok := f.files[remotePath]
	f.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s: no such file", ErrFakeTransport, remotePath)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(localPath, content, 0o644); err != nil {
		return 0, err
	}
	return int64(len(content)), nil
}

// Attempts returns how many times remote was requested.
func (f *FakeTransport) Attempts(remote string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[path.Clean(remote)]
}

// Listed returns every directory listed so far, in call order.
func (f *FakeTransport) Listed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.listed...)
}

// MaxInFlight returns the highest number of concurrent downloads observed.
func (f *FakeTransport) MaxInFlight() int64 {
	return f.maxInFlight.Load()
}
