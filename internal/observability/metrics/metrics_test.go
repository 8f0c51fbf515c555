package metrics

import (
	"context"
	"errors"
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
		attribute.String("outcome", "rated"),
		attribute.String("customer_id", "456"),
		attribute.String("phase", "login"),
	)
	require.Len(t, attrs, 2)
	for _, attr := range attrs {
		assert.NotEqual(t, attribute.Key("customer_id"), attr.Key)
	}
}

func TestDomainMetricsOnNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "cdrbill"}, noop.NewMeterProvider())
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCDRs(ctx, "rated", 2)
	m.RecordCarrierRequest(ctx, "login", errors.New("boom"))
	m.RecordInvoice(ctx, nil)
	m.RecordArchiveUpload(ctx, "gcs", nil)

	var nilMetrics *Metrics
	nilMetrics.RecordCDRs(ctx, "rated", 1)
	nilMetrics.RecordInvoice(ctx, nil)
}

func TestDomainMetricsCountByOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := New(Config{}, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCDRs(ctx, "rated", 3)
	m.RecordCDRs(ctx, "skipped_direction", 2)
	m.RecordCDRs(ctx, "rated", 0)
	m.RecordCarrierRequest(ctx, "export_poll", nil)
	m.RecordCarrierRequest(ctx, "export_poll", errors.New("status 503"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	records := sumByAttr(t, rm, "cdrbill_cdr_records_total", "outcome")
	assert.Equal(t, map[string]int64{"rated": 3, "skipped_direction": 2}, records)

	carrier := sumByAttr(t, rm, "cdrbill_carrier_requests_total", "status")
	assert.Equal(t, map[string]int64{"ok": 1, "error": 1}, carrier)
}

func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name string, key attribute.Key) map[string]int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			out := make(map[string]int64)
			for _, dp := range sum.DataPoints {
				value, _ := dp.Attributes.Value(key)
				out[value.AsString()] += dp.Value
			}
			return out
		}
	}
	t.Fatalf("metric %s not collected", name)
	return nil
}
