package transport

import (
	"context"
	"path"
	"strings"
)

// Client lists remote directories and retrieves individual files. Errors
// returned by either method are treated as retryable by callers.
type Client interface {
	// List returns the entry names (not full paths) directly under dir.
	List(ctx context.Context, dir string) ([]string, error)
	// Download copies remotePath into localPath and returns the bytes written.
	Download(ctx context.Context, remotePath, localPath string) (int64, error)
}

// SourceRoot returns the remote directory holding a source's date hierarchy.
func SourceRoot(base, source string) string {
	return path.Join("/", strings.Trim(base, "/"), source)
}

// baseName normalizes listing entries; some servers return full paths from NLST.
func baseName(entry string) string {
	entry = strings.TrimRight(strings.TrimSpace(entry), "/")
	if entry == "" {
		return ""
	}
	return path.Base(entry)
}
