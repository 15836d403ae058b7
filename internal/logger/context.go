package logger

import (
	"context"
	"sync/atomic"

	"github.com/smallbiznis/storesplit/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var serviceName atomic.Pointer[string]

// SetServiceName configures the service name added to every contextual log entry.
func SetServiceName(name string) {
	serviceName.Store(&name)
}

// FromContext returns the global logger enriched with correlation and tracing metadata.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext enriches base using metadata carried by ctx.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	fields := make([]zap.Field, 0, 4)
	if cid := correlation.FromContext(ctx); cid != "" {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if name := serviceName.Load(); name != nil {
		fields = append(fields, zap.String("service", *name))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
