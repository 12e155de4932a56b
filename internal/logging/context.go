package logging

import (
	"context"
	"log/slog"

	"radarflow/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldDaemon names the daemon lane emitting the record.
	FieldDaemon = "daemon"
	// FieldSource is the radar source name.
	FieldSource = "source"
	// FieldVolumeID is the volume identifier.
	FieldVolumeID = "volume_id"
	// FieldProductType is the product type handled by a product daemon.
	FieldProductType = "product_type"
	// FieldFilename is a remote or local file name.
	FieldFilename = "filename"
	// FieldCorrelationID is the per-cycle correlation identifier.
	FieldCorrelationID = "correlation_id"
	// FieldEventType is a stable machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step when something fails.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if name, ok := services.DaemonFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldDaemon, name))
	}
	if source, ok := services.SourceFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSource, source))
	}
	if id, ok := services.VolumeIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldVolumeID, id))
	}
	if pt, ok := services.ProductTypeFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldProductType, pt))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(asArgs(fields)...)
}
