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

// ProductCandidates returns completed volumes whose product record for
// productType is missing, pending, or failed, oldest first.
func (s *Store) ProductCandidates(ctx context.Context, productType string) ([]ProductCandidate, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT
            v.volume_id, v.source, v.strategy, v.vol_nr, v.observation_datetime, v.status,
            v.artifact_path, v.error_message, v.is_complete, v.expected_fields,
            v.downloaded_fields, v.created_at, v.updated_at, v.processed_at,
            p.status, p.error_message, p.error_type, p.created_at, p.updated_at
        FROM volume_processing v
        LEFT JOIN product_generation p
            ON p.volume_id = v.volume_id AND p.product_type = ?
        WHERE v.status = ? AND (p.status IS NULL OR p.status IN (?, ?))
        ORDER BY v.observation_datetime, v.volume_id`,
		productType, string(StatusCompleted), string(StatusPending), string(StatusFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("query product candidates: %w", err)
	}
	defer rows.Close()

	var out []ProductCandidate
	for rows.Next() {
		var (
			productStatus sql.NullString
			productErrMsg sql.NullString
			productErrTyp sql.NullString
			productCreate sql.NullString
			productUpdate sql.NullString
		)
		var volume *Volume
		volume, err = scanVolume(joinedScanner{rows: rows, extra: []any{
			&productStatus, &productErrMsg, &productErrTyp, &productCreate, &productUpdate,
		}})
		if err != nil {
			return nil, fmt.Errorf("scan product candidate: %w", err)
		}
		candidate := ProductCandidate{Volume: *volume}
		if productStatus.Valid {
			candidate.Product = &Product{
				VolumeID:     volume.VolumeID,
				ProductType:  productType,
				Status:       Status(productStatus.String),
				ErrorMessage: productErrMsg.String,
				ErrorType:    productErrTyp.String,
				CreatedAt:    parseTimestamp(productCreate),
				UpdatedAt:    parseTimestamp(productUpdate),
			}
		}
		out = append(out, candidate)
	}
	return out, rows.Err()
}

// joinedScanner appends extra destinations after the ones scanVolume passes.
type joinedScanner struct {
	rows  *sql.Rows
	extra []any
}

func (j joinedScanner) Scan(dest ...any) error {
	return j.rows.Scan(append(dest, j.extra...)...)
}

// RegisterProduct creates a pending product record unless one already exists.
func (s *Store) RegisterProduct(ctx context.Context, volumeID, productType string) error {
	if strings.TrimSpace(volumeID) == "" || strings.TrimSpace(productType) == "" {
		return errors.New("register product: volume id and product type are required")
	}
	now := s.timestamp()
	_, err := s.execWithRetry(ctx, `INSERT INTO product_generation (
            volume_id, product_type, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(volume_id, product_type) DO NOTHING`,
		volumeID, productType, string(StatusPending), now, now,
	)
	if err != nil {
		return fmt.Errorf("register product %s/%s: %w", volumeID, productType, err)
	}
	return nil
}

// GetProduct fetches a product record, returning nil when absent.
func (s *Store) GetProduct(ctx context.Context, volumeID, productType string) (*Product, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+productColumns+` FROM product_generation WHERE volume_id = ? AND product_type = ?`,
		volumeID, productType)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s/%s: %w", volumeID, productType, err)
	}
	return p, nil
}

// ClaimProduct moves a pending or failed product to processing. It reports
// false when the record is already claimed or finished.
func (s *Store) ClaimProduct(ctx context.Context, volumeID, productType string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE product_generation SET status = ?, updated_at = ?
         WHERE volume_id = ? AND product_type = ? AND status IN (?, ?)`,
		string(StatusProcessing), s.timestamp(), volumeID, productType,
		string(StatusPending), string(StatusFailed),
	)
	if err != nil {
		return false, fmt.Errorf("claim product %s/%s: %w", volumeID, productType, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// MarkProductCompleted clears any previous error and marks the product done.
func (s *Store) MarkProductCompleted(ctx context.Context, volumeID, productType string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE product_generation
         SET status = ?, error_message = NULL, error_type = NULL, updated_at = ?
         WHERE volume_id = ? AND product_type = ?`,
		string(StatusCompleted), s.timestamp(), volumeID, productType,
	)
	if err != nil {
		return fmt.Errorf("complete product %s/%s: %w", volumeID, productType, err)
	}
	return nil
}

// MarkProductFailed records a failure message and classification.
func (s *Store) MarkProductFailed(ctx context.Context, volumeID, productType, message, errorType string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE product_generation
         SET status = ?, error_message = ?, error_type = ?, updated_at = ?
         WHERE volume_id = ? AND product_type = ?`,
		string(StatusFailed), services.TruncateMessage(message), nullableString(errorType),
		s.timestamp(), volumeID, productType,
	)
	if err != nil {
		return fmt.Errorf("fail product %s/%s: %w", volumeID, productType, err)
	}
	return nil
}

// ResetStuckProducts returns productType records processing for longer than
// timeout to pending and reports the affected volume ids.
func (s *Store) ResetStuckProducts(ctx context.Context, productType string, timeout time.Duration) ([]string, error) {
	cutoff := formatTimestamp(s.now().Add(-timeout))
	var ids []string
	err := s.withTx(ctx, func(tx txExecer) error {
		ids = ids[:0]
		rows, err := tx.QueryContext(ctx,
			`SELECT volume_id FROM product_generation
             WHERE product_type = ? AND status = ? AND updated_at < ? ORDER BY volume_id`,
			productType, string(StatusProcessing), cutoff)
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
			`UPDATE product_generation SET status = ?, updated_at = ?
             WHERE product_type = ? AND status = ? AND updated_at < ?`,
			string(StatusPending), s.timestamp(), productType, string(StatusProcessing), cutoff)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reset stuck products: %w", err)
	}
	return ids, nil
}

// RetryFailedProducts moves failed product records back to pending. An empty
// productType matches every type.
func (s *Store) RetryFailedProducts(ctx context.Context, productType string) (int64, error) {
	query := `UPDATE product_generation SET status = ?, error_message = NULL, error_type = NULL, updated_at = ?
        WHERE status = ?`
	args := []any{string(StatusPending), s.timestamp(), string(StatusFailed)}
	if productType != "" {
		query += ` AND product_type = ?`
		args = append(args, productType)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed products: %w", err)
	}
	return res.RowsAffected()
}

// ListProducts returns product records matching filter, most recently updated first.
func (s *Store) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.ProductType != "" {
		clauses = append(clauses, "product_type = ?")
		args = append(args, filter.ProductType)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		args = append(args, statusArgs(filter.Statuses)...)
	}
	query := `SELECT ` + productColumns + ` FROM product_generation`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY updated_at DESC, volume_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
