package state

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"radarflow/internal/grammar"
)

// timestampLayout is fixed width so stored values compare lexically.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw.String); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func formatObserved(t time.Time) string {
	return grammar.FormatTime(t)
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func encodeFields(fields []string) string {
	if fields == nil {
		fields = []string{}
	}
	data, err := json.Marshal(grammar.NormalizeFields(fields))
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeFields(raw string) []string {
	var fields []string
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil
	}
	return fields
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	return args
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

const downloadColumns = "filename, remote_path, local_path, size, checksum, source, strategy, vol_nr, field_type, observation_datetime, status, created_at, updated_at"

func scanDownload(scanner rowScanner) (*Download, error) {
	var (
		d          Download
		localPath  sql.NullString
		size       sql.NullInt64
		checksum   sql.NullString
		source     sql.NullString
		strategy   sql.NullString
		volNr      sql.NullString
		fieldType  sql.NullString
		observed   sql.NullString
		statusStr  string
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&d.Filename,
		&d.RemotePath,
		&localPath,
		&size,
		&checksum,
		&source,
		&strategy,
		&volNr,
		&fieldType,
		&observed,
		&statusStr,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	d.LocalPath = localPath.String
	d.Size = size.Int64
	d.Checksum = checksum.String
	d.Source = source.String
	d.Strategy = strategy.String
	d.VolNr = volNr.String
	d.FieldType = fieldType.String
	d.Observed = parseTimestamp(observed)
	d.Status = DownloadStatus(statusStr)
	d.CreatedAt = parseTimestamp(createdRaw)
	d.UpdatedAt = parseTimestamp(updatedRaw)
	return &d, nil
}

const volumeColumns = "volume_id, source, strategy, vol_nr, observation_datetime, status, artifact_path, error_message, is_complete, expected_fields, downloaded_fields, created_at, updated_at, processed_at"

func scanVolume(scanner rowScanner) (*Volume, error) {
	var (
		v            Volume
		observed     sql.NullString
		statusStr    string
		artifactPath sql.NullString
		errorMessage sql.NullString
		isComplete   int
		expected     string
		downloaded   string
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		processedRaw sql.NullString
	)
	if err := scanner.Scan(
		&v.VolumeID,
		&v.Source,
		&v.Strategy,
		&v.VolNr,
		&observed,
		&statusStr,
		&artifactPath,
		&errorMessage,
		&isComplete,
		&expected,
		&downloaded,
		&createdRaw,
		&updatedRaw,
		&processedRaw,
	); err != nil {
		return nil, err
	}
	v.Observed = parseTimestamp(observed)
	v.Status = Status(statusStr)
	v.ArtifactPath = artifactPath.String
	v.ErrorMessage = errorMessage.String
	v.IsComplete = isComplete != 0
	v.ExpectedFields = decodeFields(expected)
	v.DownloadedFields = decodeFields(downloaded)
	v.CreatedAt = parseTimestamp(createdRaw)
	v.UpdatedAt = parseTimestamp(updatedRaw)
	v.ProcessedAt = parseTimestamp(processedRaw)
	return &v, nil
}

const productColumns = "volume_id, product_type, status, error_message, error_type, created_at, updated_at"

func scanProduct(scanner rowScanner) (*Product, error) {
	var (
		p            Product
		statusStr    string
		errorMessage sql.NullString
		errorType    sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&p.VolumeID,
		&p.ProductType,
		&statusStr,
		&errorMessage,
		&errorType,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	p.Status = Status(statusStr)
	p.ErrorMessage = errorMessage.String
	p.ErrorType = errorType.String
	p.CreatedAt = parseTimestamp(createdRaw)
	p.UpdatedAt = parseTimestamp(updatedRaw)
	return &p, nil
}
