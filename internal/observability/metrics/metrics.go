package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentsCreated    metric.Int64Counter
	paymentsUpdated    metric.Int64Counter
	paymentsDeleted    metric.Int64Counter
	allocationsRemoved metric.Int64Counter
	reimbursements     metric.Int64Counter
	cashPostings       metric.Int64Counter
	httpRequests       metric.Int64Counter
	httpDuration       metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "storesplit"
	}
	meter := provider.Meter(name)

	paymentsCreated, err := meter.Int64Counter("storesplit_payments_created_total")
	if err != nil {
		return nil, err
	}
	paymentsUpdated, err := meter.Int64Counter("storesplit_payments_updated_total")
	if err != nil {
		return nil, err
	}
	paymentsDeleted, err := meter.Int64Counter("storesplit_payments_deleted_total")
	if err != nil {
		return nil, err
	}
	allocationsRemoved, err := meter.Int64Counter("storesplit_allocations_removed_total")
	if err != nil {
		return nil, err
	}
	reimbursements, err := meter.Int64Counter("storesplit_reimbursement_transitions_total")
	if err != nil {
		return nil, err
	}
	cashPostings, err := meter.Int64Counter("storesplit_cash_postings_total")
	if err != nil {
		return nil, err
	}
	httpRequests, err := meter.Int64Counter("storesplit_http_requests_total")
	if err != nil {
		return nil, err
	}
	httpDuration, err := meter.Float64Histogram("storesplit_http_request_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		paymentsCreated:    paymentsCreated,
		paymentsUpdated:    paymentsUpdated,
		paymentsDeleted:    paymentsDeleted,
		allocationsRemoved: allocationsRemoved,
		reimbursements:     reimbursements,
		cashPostings:       cashPostings,
		httpRequests:       httpRequests,
		httpDuration:       httpDuration,
	}, nil
}

// RecordPaymentCreated increments created payment counts.
func (m *Metrics) RecordPaymentCreated(ctx context.Context, mode, mirrorContext string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("split_mode", strings.TrimSpace(mode)),
		attribute.String("context", strings.TrimSpace(mirrorContext)),
	)
	m.paymentsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPaymentUpdated(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("split_mode", strings.TrimSpace(mode)))
	m.paymentsUpdated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPaymentDeleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.paymentsDeleted.Add(ctx, 1)
}

// RecordAllocationRemoved counts removals; merged reports whether the removed
// amount was folded into an existing source-store allocation.
func (m *Metrics) RecordAllocationRemoved(ctx context.Context, merged bool) {
	if m == nil {
		return
	}
	m.allocationsRemoved.Add(ctx, 1, metric.WithAttributes(attribute.Bool("merged", merged)))
}

// RecordReimbursementTransition increments reimbursement status transitions.
func (m *Metrics) RecordReimbursementTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from", strings.TrimSpace(from)),
		attribute.String("to", strings.TrimSpace(to)),
	)
	m.reimbursements.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCashPosting increments cash ledger postings by direction.
func (m *Metrics) RecordCashPosting(ctx context.Context, direction, reasonCode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("direction", strings.TrimSpace(direction)),
		attribute.String("reason", strings.TrimSpace(reasonCode)),
	)
	m.cashPostings.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordHTTPRequest counts one served request and its latency.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("method", strings.ToUpper(method)),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"split_mode": {},
	"context":    {},
	"from":       {},
	"to":         {},
	"direction":  {},
	"reason":     {},
	"merged":     {},
	"method":     {},
	"route":      {},
	"status":     {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
