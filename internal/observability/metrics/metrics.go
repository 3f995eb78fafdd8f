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

// Metrics exposes domain-level OTEL instruments.
type Metrics struct {
	invoiceGroups  metric.Int64Counter
	invoiceAmount  metric.Float64Counter
	queueEnqueued  metric.Int64Counter
	timesheetEvent metric.Int64Counter
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
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "carebill"
	}
	meter := provider.Meter(name)

	invoiceGroups, err := meter.Int64Counter("carebill_invoice_groups_total")
	if err != nil {
		return nil, err
	}
	invoiceAmount, err := meter.Float64Counter("carebill_invoice_amount_total")
	if err != nil {
		return nil, err
	}
	queueEnqueued, err := meter.Int64Counter("carebill_queue_enqueued_total")
	if err != nil {
		return nil, err
	}
	timesheetEvent, err := meter.Int64Counter("carebill_timesheet_events_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invoiceGroups:  invoiceGroups,
		invoiceAmount:  invoiceAmount,
		queueEnqueued:  queueEnqueued,
		timesheetEvent: timesheetEvent,
	}, nil
}

// RecordInvoiceGroup counts one (client, week) group by outcome: created, skipped or failed.
func (m *Metrics) RecordInvoiceGroup(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.invoiceGroups.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("outcome", outcome))...))
}

func (m *Metrics) RecordInvoiceAmount(ctx context.Context, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.invoiceAmount.Add(ctx, amount)
}

func (m *Metrics) RecordEnqueued(ctx context.Context, entityType string) {
	if m == nil {
		return
	}
	m.queueEnqueued.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("entity_type", entityType))...))
}

func (m *Metrics) RecordTimesheetEvent(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.timesheetEvent.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("event_type", event))...))
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
	"outcome":     {},
	"entity_type": {},
	"event_type":  {},
	"status":      {},
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
