package services

import "context"

type contextKey string

const (
	daemonKey      contextKey = "daemon"
	sourceKey      contextKey = "source"
	volumeIDKey    contextKey = "volume_id"
	productTypeKey contextKey = "product_type"
	requestIDKey   contextKey = "request_id"
)

// WithDaemon annotates context with the daemon (lane) name.
func WithDaemon(ctx context.Context, name string) context.Context {
	return withString(ctx, daemonKey, name)
}

// DaemonFromContext returns the daemon name if present.
func DaemonFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, daemonKey)
}

// WithSource annotates context with the radar source name.
func WithSource(ctx context.Context, source string) context.Context {
	return withString(ctx, sourceKey, source)
}

// SourceFromContext returns the radar source if present.
func SourceFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, sourceKey)
}

// WithVolumeID annotates context with the volume identifier being worked on.
func WithVolumeID(ctx context.Context, id string) context.Context {
	return withString(ctx, volumeIDKey, id)
}

// VolumeIDFromContext returns the volume identifier if present.
func VolumeIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, volumeIDKey)
}

// WithProductType annotates context with the product type.
func WithProductType(ctx context.Context, productType string) context.Context {
	return withString(ctx, productTypeKey, productType)
}

// ProductTypeFromContext returns the product type if present.
func ProductTypeFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, productTypeKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
