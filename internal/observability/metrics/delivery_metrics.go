package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	BatchOutcomeSent        = "sent"
	BatchOutcomeFailed      = "failed"
	BatchOutcomeRenderError = "render_failed"
	BatchOutcomeEmpty       = "empty"
)

// DeliveryMetrics tracks the billing queue and invoice generation.
type DeliveryMetrics struct {
	batches        *prometheus.CounterVec
	itemsResolved  *prometheus.CounterVec
	renderFailures *prometheus.CounterVec
	sendDuration   prometheus.Observer
	stuckSending   prometheus.Gauge
	invoiceGroups  *prometheus.CounterVec
}

var (
	deliveryMetricsOnce sync.Once
	deliveryMetrics     *DeliveryMetrics
)

func Delivery() *DeliveryMetrics {
	return DeliveryWithConfig(Config{})
}

// DeliveryWithConfig returns the singleton delivery metrics registry using config labels.
func DeliveryWithConfig(cfg Config) *DeliveryMetrics {
	deliveryMetricsOnce.Do(func() {
		deliveryMetrics = newDeliveryMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return deliveryMetrics
}

// ResetDeliveryMetricsForTest resets the delivery metrics singleton for tests.
func ResetDeliveryMetricsForTest() {
	deliveryMetricsOnce = sync.Once{}
	deliveryMetrics = nil
}

func newDeliveryMetrics(registerer prometheus.Registerer, cfg Config) *DeliveryMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carebill_delivery_batches_total",
		Help:        "Delivery batches by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	itemsResolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carebill_delivery_items_resolved_total",
		Help:        "Queue items moved to a terminal status.",
		ConstLabels: constLabels,
	}, []string{"status"})
	renderFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carebill_delivery_render_failures_total",
		Help:        "Document render failures by entity type.",
		ConstLabels: constLabels,
	}, []string{"entity_type"})
	sendDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "carebill_delivery_send_duration_seconds",
		Help:        "Latency of the outbound send for one batch.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})
	stuckSending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "carebill_delivery_stuck_sending",
		Help:        "Queue items in SENDING past the recovery threshold at last check.",
		ConstLabels: constLabels,
	})
	invoiceGroups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carebill_invoice_generation_groups_total",
		Help:        "Client-week groups processed by invoice generation, by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})

	registerer.MustRegister(batches, itemsResolved, renderFailures, sendDuration, stuckSending, invoiceGroups)

	return &DeliveryMetrics{
		batches:        batches,
		itemsResolved:  itemsResolved,
		renderFailures: renderFailures,
		sendDuration:   sendDuration,
		stuckSending:   stuckSending,
		invoiceGroups:  invoiceGroups,
	}
}

func (m *DeliveryMetrics) IncBatch(outcome string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(outcome).Inc()
}

func (m *DeliveryMetrics) AddItemsResolved(status string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.itemsResolved.WithLabelValues(status).Add(float64(count))
}

func (m *DeliveryMetrics) IncRenderFailure(entityType string) {
	if m == nil {
		return
	}
	m.renderFailures.WithLabelValues(entityType).Inc()
}

func (m *DeliveryMetrics) ObserveSendDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.sendDuration.Observe(d.Seconds())
}

// SetStuckSending records the most recent stuck-item count.
func (m *DeliveryMetrics) SetStuckSending(count int) {
	if m == nil {
		return
	}
	m.stuckSending.Set(float64(count))
}

func (m *DeliveryMetrics) AddInvoiceGroups(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.invoiceGroups.WithLabelValues(outcome).Add(float64(count))
}
