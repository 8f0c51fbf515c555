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
	cdrRecords       metric.Int64Counter
	carrierRequests  metric.Int64Counter
	invoicesRendered metric.Int64Counter
	archiveUploads   metric.Int64Counter
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
		name = "cdrbill"
	}
	meter := provider.Meter(name)

	cdrRecords, err := meter.Int64Counter("cdrbill_cdr_records_total",
		metric.WithDescription("CDR records seen by the aggregation fold, by outcome."))
	if err != nil {
		return nil, err
	}
	carrierRequests, err := meter.Int64Counter("cdrbill_carrier_requests_total",
		metric.WithDescription("Carrier API exchanges by phase and outcome."))
	if err != nil {
		return nil, err
	}
	invoicesRendered, err := meter.Int64Counter("cdrbill_invoices_rendered_total")
	if err != nil {
		return nil, err
	}
	archiveUploads, err := meter.Int64Counter("cdrbill_archive_uploads_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		cdrRecords:       cdrRecords,
		carrierRequests:  carrierRequests,
		invoicesRendered: invoicesRendered,
		archiveUploads:   archiveUploads,
	}, nil
}

// RecordCDRs adds count records with the given fold outcome (rated, skipped_direction, ...).
func (m *Metrics) RecordCDRs(ctx context.Context, outcome string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.cdrRecords.Add(ctx, count, metric.WithAttributes(attrs...))
}

// RecordCarrierRequest counts one carrier exchange.
func (m *Metrics) RecordCarrierRequest(ctx context.Context, phase string, err error) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("phase", strings.TrimSpace(phase)),
		attribute.String("status", statusOf(err)),
	)
	m.carrierRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoice counts one rendered (or failed) invoice.
func (m *Metrics) RecordInvoice(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.invoicesRendered.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("status", statusOf(err)))...))
}

// RecordArchiveUpload counts one archive upload attempt sequence.
func (m *Metrics) RecordArchiveUpload(ctx context.Context, provider string, err error) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("status", statusOf(err)),
	)
	m.archiveUploads.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
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
	"outcome":  {},
	"phase":    {},
	"status":   {},
	"provider": {},
	"stage":    {},
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
