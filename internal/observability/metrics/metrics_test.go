package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("direction", "in"),
		attribute.String("store_id", "456"),
		attribute.String("reason", "cross_store_reimbursement"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("direction"), attrs[0].Key)
	assert.Equal(t, attribute.Key("reason"), attrs[1].Key)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordPaymentCreated(ctx, "amount", "payment")
	m.RecordPaymentUpdated(ctx, "amount")
	m.RecordPaymentDeleted(ctx)
	m.RecordAllocationRemoved(ctx, true)
	m.RecordReimbursementTransition(ctx, "pending", "completed")
	m.RecordCashPosting(ctx, "in", "cross_store_reimbursement")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	require.NotNil(t, m)
	m.RecordPaymentCreated(context.Background(), "percentage", "expense")
}

func TestRecordCashPostingExportsCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "storesplit-test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCashPosting(ctx, "out", "cross_store_reimbursement")
	m.RecordCashPosting(ctx, "out", "cross_store_reimbursement")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var found bool
	for _, item := range rm.ScopeMetrics[0].Metrics {
		if item.Name != "storesplit_cash_postings_total" {
			continue
		}
		sum, ok := item.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, sum.DataPoints, 1)
		assert.Equal(t, int64(2), sum.DataPoints[0].Value)
		found = true
	}
	assert.True(t, found)
}
