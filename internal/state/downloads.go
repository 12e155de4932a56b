package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// RecordDownload inserts or replaces the record for d.Filename. The original
// created_at is preserved; everything else reflects the latest attempt.
func (s *Store) RecordDownload(ctx context.Context, d Download) error {
	if strings.TrimSpace(d.Filename) == "" {
		return errors.New("record download: filename is required")
	}
	if d.Status == "" {
		d.Status = DownloadCompleted
	}
	now := s.timestamp()
	var observed any
	if !d.Observed.IsZero() {
		observed = formatObserved(d.Observed)
	}
	_, err := s.execWithRetry(ctx, `INSERT INTO downloads (
            filename, remote_path, local_path, size, checksum, source, strategy, vol_nr,
            field_type, observation_datetime, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(filename) DO UPDATE SET
            remote_path = excluded.remote_path,
            local_path = excluded.local_path,
            size = excluded.size,
            checksum = excluded.checksum,
            source = excluded.source,
            strategy = excluded.strategy,
            vol_nr = excluded.vol_nr,
            field_type = excluded.field_type,
            observation_datetime = excluded.observation_datetime,
            status = excluded.status,
            updated_at = excluded.updated_at`,
		d.Filename,
		d.RemotePath,
		nullableString(d.LocalPath),
		d.Size,
		nullableString(d.Checksum),
		nullableString(d.Source),
		nullableString(d.Strategy),
		nullableString(d.VolNr),
		nullableString(d.FieldType),
		observed,
		string(d.Status),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("record download %s: %w", d.Filename, err)
	}
	return nil
}

// MarkDownloaded records a successful transfer.
func (s *Store) MarkDownloaded(ctx context.Context, d Download) error {
	d.Status = DownloadCompleted
	return s.RecordDownload(ctx, d)
}

// MarkDownloadFailed records a transfer that exhausted its retries.
func (s *Store) MarkDownloadFailed(ctx context.Context, d Download) error {
	d.Status = DownloadFailed
	return s.RecordDownload(ctx, d)
}

// IsDownloaded reports whether filename has a completed download record.
func (s *Store) IsDownloaded(ctx context.Context, filename string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM downloads WHERE filename = ? AND status = ?`,
		filename, string(DownloadCompleted),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check download %s: %w", filename, err)
	}
	return n > 0, nil
}

// GetDownload fetches a download record, returning nil when absent.
func (s *Store) GetDownload(ctx context.Context, filename string) (*Download, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+downloadColumns+` FROM downloads WHERE filename = ?`, filename)
	d, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get download %s: %w", filename, err)
	}
	return d, nil
}

// LatestDownloadTime returns the newest observation time among completed
// downloads for source.
func (s *Store) LatestDownloadTime(ctx context.Context, source string) (time.Time, bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT MAX(observation_datetime) FROM downloads WHERE source = ? AND status = ?`,
		source, string(DownloadCompleted),
	).Scan(&raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest download for %s: %w", source, err)
	}
	t := parseTimestamp(raw)
	return t, !t.IsZero(), nil
}

// CompletedDownloadsSince returns completed downloads for source observed at or
// after since. A zero since returns every completed download for the source.
func (s *Store) CompletedDownloadsSince(ctx context.Context, source string, since time.Time) ([]Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads WHERE source = ? AND status = ?`
	args := []any{source, string(DownloadCompleted)}
	if !since.IsZero() {
		query += ` AND observation_datetime >= ?`
		args = append(args, formatObserved(since))
	}
	query += ` ORDER BY observation_datetime, filename`
	return s.queryDownloads(ctx, query, args...)
}

// DownloadsInRange returns downloads of any status for source observed in
// [start, end]. A zero end leaves the range open.
func (s *Store) DownloadsInRange(ctx context.Context, source string, start, end time.Time) ([]Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads WHERE source = ? AND observation_datetime >= ?`
	args := []any{source, formatObserved(start)}
	if !end.IsZero() {
		query += ` AND observation_datetime <= ?`
		args = append(args, formatObserved(end))
	}
	query += ` ORDER BY observation_datetime, filename`
	return s.queryDownloads(ctx, query, args...)
}

// VolumeFiles returns the completed downloads belonging to v.
func (s *Store) VolumeFiles(ctx context.Context, v Volume) ([]Download, error) {
	return s.queryDownloads(ctx,
		`SELECT `+downloadColumns+` FROM downloads
         WHERE source = ? AND strategy = ? AND vol_nr = ? AND observation_datetime = ? AND status = ?
         ORDER BY field_type`,
		v.Source, v.Strategy, v.VolNr, formatObserved(v.Observed), string(DownloadCompleted),
	)
}

// ListDownloads returns downloads matching filter, newest first.
func (s *Store) ListDownloads(ctx context.Context, filter DownloadFilter) ([]Download, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := `SELECT ` + downloadColumns + ` FROM downloads`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY observation_datetime DESC, filename`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return s.queryDownloads(ctx, query, args...)
}

// RemoveDownload deletes one download record so the file is fetched again.
func (s *Store) RemoveDownload(ctx context.Context, filename string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM downloads WHERE filename = ?`, filename)
	if err != nil {
		return false, fmt.Errorf("remove download %s: %w", filename, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// RetryFailedDownloads deletes failed and partial records. Files at or after a
// source's resume point are attempted again on the next download cycle.
func (s *Store) RetryFailedDownloads(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM downloads WHERE status IN (?, ?)`,
		string(DownloadFailed), string(DownloadPartial),
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed downloads: %w", err)
	}
	return res.RowsAffected()
}

// EvictDownloadsBefore removes download records observed before cutoff. When
// removeFiles is set the local copies are deleted first; a record whose file
// cannot be removed is kept so a later eviction can retry it, and the removal
// errors are returned alongside the number of rows deleted. Missing files are
// ignored.
func (s *Store) EvictDownloadsBefore(ctx context.Context, cutoff time.Time, removeFiles bool) (int64, error) {
	ctx = ensureContext(ctx)
	bound := formatObserved(cutoff)
	var (
		kept       []any
		removeErrs []error
	)
	if removeFiles {
		rows, err := s.db.QueryContext(ctx,
			`SELECT filename, local_path FROM downloads WHERE observation_datetime < ? AND local_path IS NOT NULL`, bound)
		if err != nil {
			return 0, fmt.Errorf("select evicted downloads: %w", err)
		}
		type evicted struct{ filename, path string }
		var victims []evicted
		for rows.Next() {
			var e evicted
			if err := rows.Scan(&e.filename, &e.path); err != nil {
				_ = rows.Close()
				return 0, err
			}
			victims = append(victims, e)
		}
		if err := rows.Close(); err != nil {
			return 0, err
		}
		for _, e := range victims {
			if err := os.Remove(e.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				removeErrs = append(removeErrs, fmt.Errorf("remove %s: %w", e.path, err))
				kept = append(kept, e.filename)
			}
		}
	}

	query := `DELETE FROM downloads WHERE observation_datetime < ?`
	args := []any{bound}
	if len(kept) > 0 {
		query += ` AND filename NOT IN (` + makePlaceholders(len(kept)) + `)`
		args = append(args, kept...)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, errors.Join(append(removeErrs, fmt.Errorf("evict downloads: %w", err))...)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, errors.Join(removeErrs...)
}

func (s *Store) queryDownloads(ctx context.Context, query string, args ...any) ([]Download, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}
	defer rows.Close()

	var out []Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
