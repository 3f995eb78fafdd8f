package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("client_id", "123"),
		attribute.String("outcome", "created"),
		attribute.String("entity_type", "invoice"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "client_id" {
			t.Fatalf("expected client_id to be dropped")
		}
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	m.RecordInvoiceGroup(context.Background(), "created")
	var d *DeliveryMetrics
	d.IncBatch(BatchOutcomeSent)
	var s *SchedulerMetrics
	s.IncJobRun("stuck_sending")
}
