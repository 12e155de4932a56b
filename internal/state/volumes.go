package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"radarflow/internal/services"
)

// RegisterVolume inserts a volume record. Existing volumes are left untouched
// and the call reports false, so expected fields are fixed at first sight.
func (s *Store) RegisterVolume(ctx context.Context, v NewVolume) (bool, error) {
	if strings.TrimSpace(v.VolumeID) == "" {
		return false, errors.New("register volume: volume id is required")
	}
	now := s.timestamp()
	res, err := s.execWithRetry(ctx, `INSERT INTO volume_processing (
            volume_id, source, strategy, vol_nr, observation_datetime, status,
            is_complete, expected_fields, downloaded_fields, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(volume_id) DO NOTHING`,
		v.VolumeID,
		v.Source,
		v.Strategy,
		v.VolNr,
		formatObserved(v.Observed),
		string(StatusPending),
		boolToInt(v.IsComplete),
		encodeFields(v.ExpectedFields),
		encodeFields(v.DownloadedFields),
		now,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("register volume %s: %w", v.VolumeID, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// UpdateVolumeFields stores a new downloaded field set and completeness flag.
// Nothing is written when both already match, and the call reports false.
// A processing row keeps its updated_at so the claim lease is not extended.
func (s *Store) UpdateVolumeFields(ctx context.Context, volumeID string, downloaded []string, complete bool) (bool, error) {
	encoded := encodeFields(downloaded)
	flag := boolToInt(complete)
	res, err := s.execWithRetry(ctx, `UPDATE volume_processing
        SET downloaded_fields = ?, is_complete = ?,
            updated_at = CASE WHEN status = ? THEN updated_at ELSE ? END
        WHERE volume_id = ? AND (downloaded_fields != ? OR is_complete != ?)`,
		encoded, flag, string(StatusProcessing), s.timestamp(), volumeID, encoded, flag,
	)
	if err != nil {
		return false, fmt.Errorf("update volume %s: %w", volumeID, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// GetVolume fetches a volume record, returning nil when absent.
func (s *Store) GetVolume(ctx context.Context, volumeID string) (*Volume, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+volumeColumns+` FROM volume_processing WHERE volume_id = ?`, volumeID)
	v, err := scanVolume(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get volume %s: %w", volumeID, err)
	}
	return v, nil
}

// LatestVolumeTime returns the newest observation time among registered
// volumes for source.
func (s *Store) LatestVolumeTime(ctx context.Context, source string) (time.Time, bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT MAX(observation_datetime) FROM volume_processing WHERE source = ?`, source,
	).Scan(&raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest volume for %s: %w", source, err)
	}
	t := parseTimestamp(raw)
	return t, !t.IsZero(), nil
}

// VolumesForSource returns registered volumes for source observed at or after
// since, keyed by volume id.
func (s *Store) VolumesForSource(ctx context.Context, source string, since time.Time) (map[string]Volume, error) {
	query := `SELECT ` + volumeColumns + ` FROM volume_processing WHERE source = ?`
	args := []any{source}
	if !since.IsZero() {
		query += ` AND observation_datetime >= ?`
		args = append(args, formatObserved(since))
	}
	volumes, err := s.queryVolumes(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Volume, len(volumes))
	for _, v := range volumes {
		out[v.VolumeID] = v
	}
	return out, nil
}

// PendingVolumes returns pending volumes ready for processing, oldest first.
// Complete volumes always qualify; incomplete ones qualify only when
// allowIncomplete is set and they were observed at or before incompleteCutoff.
func (s *Store) PendingVolumes(ctx context.Context, allowIncomplete bool, incompleteCutoff time.Time) ([]Volume, error) {
	query := `SELECT ` + volumeColumns + ` FROM volume_processing WHERE status = ? AND (is_complete = 1`
	args := []any{string(StatusPending)}
	if allowIncomplete {
		query += ` OR observation_datetime <= ?`
		args = append(args, formatObserved(incompleteCutoff))
	}
	query += `) ORDER BY observation_datetime, volume_id`
	return s.queryVolumes(ctx, query, args...)
}

// CountIncompletePending returns how many pending volumes are still missing fields.
func (s *Store) CountIncompletePending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM volume_processing WHERE status = ? AND is_complete = 0`,
		string(StatusPending),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count incomplete volumes: %w", err)
	}
	return n, nil
}

// ListVolumes returns volumes matching filter, newest first.
func (s *Store) ListVolumes(ctx context.Context, filter VolumeFilter) ([]Volume, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, filter.Source)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		args = append(args, statusArgs(filter.Statuses)...)
	}
	query := `SELECT ` + volumeColumns + ` FROM volume_processing`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY observation_datetime DESC, volume_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return s.queryVolumes(ctx, query, args...)
}

// ClaimVolume moves a pending volume to processing. It reports false when
// another worker got there first.
func (s *Store) ClaimVolume(ctx context.Context, volumeID string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE volume_processing SET status = ?, error_message = NULL, updated_at = ?
         WHERE volume_id = ? AND status = ?`,
		string(StatusProcessing), s.timestamp(), volumeID, string(StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("claim volume %s: %w", volumeID, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// MarkVolumeCompleted records the artifact produced for a volume.
func (s *Store) MarkVolumeCompleted(ctx context.Context, volumeID, artifactPath string) error {
	now := s.timestamp()
	_, err := s.execWithRetry(ctx,
		`UPDATE volume_processing
         SET status = ?, artifact_path = ?, error_message = NULL, updated_at = ?, processed_at = ?
         WHERE volume_id = ?`,
		string(StatusCompleted), nullableString(artifactPath), now, now, volumeID,
	)
	if err != nil {
		return fmt.Errorf("complete volume %s: %w", volumeID, err)
	}
	return nil
}

// MarkVolumeFailed records a processing failure with a truncated message.
func (s *Store) MarkVolumeFailed(ctx context.Context, volumeID, message string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE volume_processing SET status = ?, error_message = ?, updated_at = ? WHERE volume_id = ?`,
		string(StatusFailed), services.TruncateMessage(message), s.timestamp(), volumeID,
	)
	if err != nil {
		return fmt.Errorf("fail volume %s: %w", volumeID, err)
	}
	return nil
}

// ResetStuckVolumes returns volumes that have been processing for longer than
// timeout to pending and reports their ids.
func (s *Store) ResetStuckVolumes(ctx context.Context, timeout time.Duration) ([]string, error) {
	cutoff := formatTimestamp(s.now().Add(-timeout))
	var ids []string
	err := s.withTx(ctx, func(tx txExecer) error {
		ids = ids[:0]
		rows, err := tx.QueryContext(ctx,
			`SELECT volume_id FROM volume_processing WHERE status = ? AND updated_at < ? ORDER BY volume_id`,
			string(StatusProcessing), cutoff)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE volume_processing SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
			string(StatusPending), s.timestamp(), string(StatusProcessing), cutoff)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reset stuck volumes: %w", err)
	}
	return ids, nil
}

// RetryFailedVolumes moves failed volumes back to pending.
func (s *Store) RetryFailedVolumes(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE volume_processing SET status = ?, error_message = NULL, updated_at = ? WHERE status = ?`,
		string(StatusPending), s.timestamp(), string(StatusFailed),
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed volumes: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) queryVolumes(ctx context.Context, query string, args ...any) ([]Volume, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query volumes: %w", err)
	}
	defer rows.Close()

	var out []Volume
	for rows.Next() {
		v, err := scanVolume(rows)
		if err != nil {
			return nil, fmt.Errorf("scan volume: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
