package observability

import (
	"github.com/smallbiznis/storesplit/internal/observability/metrics"
	"github.com/smallbiznis/storesplit/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Tracing,
		Config.Metrics,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
	),
	// the tracer provider installs itself globally; force construction
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
