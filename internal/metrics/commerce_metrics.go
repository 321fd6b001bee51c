package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CommerceMetrics содержит метрики заказов, вебхуков и модерации сборок.
type CommerceMetrics struct {
	// Счётчики заказов
	ordersCreated     prometheus.Counter
	ordersCancelled   prometheus.Counter
	insufficientStock prometheus.Counter

	// События платёжного шлюза по результату обработки
	webhookEvents *prometheus.CounterVec

	// Переходы статусов сборок по действию
	approvalTransitions *prometheus.CounterVec

	// Отправки чеков
	receiptSends  prometheus.Counter
	receiptErrors prometheus.Counter

	// Гистограмма времени оформления заказа
	checkoutDuration prometheus.Histogram

	// Счётчики журналов
	auditEntries prometheus.Counter
	outboxEvents prometheus.Counter
}

// NewCommerceMetrics создаёт метрики и регистрирует их в default registry.
func NewCommerceMetrics() *CommerceMetrics {
	return newCommerceMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCommerceMetricsWithRegisterer(registerer prometheus.Registerer) *CommerceMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CommerceMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pcshop_orders_created_total",
			Help: "Total number of orders created with stock reserved",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pcshop_orders_cancelled_total",
			Help: "Total number of orders cancelled with stock returned",
		}),
		insufficientStock: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pcshop_insufficient_stock_total",
			Help: "Total number of checkouts rejected due to insufficient stock",
		}),
		webhookEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pcshop_webhook_events_total",
			Help: "Total number of payment gateway events grouped by processing result",
		}, []string{"result"}),
		approvalTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pcshop_configuration_transitions_total",
			Help: "Total number of configuration status transitions grouped by action",
		}, []string{"action"}),
		receiptSends: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pcshop_receipt_sends_total",
			Help: "Total number of receipt notifications dispatched",
		}),
		receiptErrors: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pcshop_receipt_errors_total",
			Help: "Total number of receipt notification failures (logged, never fatal)",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "pcshop_checkout_duration_seconds",
			Help:    "Duration of order creation including stock reservation",
			Buckets: prometheus.DefBuckets,
		}),
		auditEntries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pcshop_audit_entries_total",
			Help: "Total number of audit log entries written",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pcshop_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *CommerceMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *CommerceMetrics) RecordOrderCancelled() {
	m.ordersCancelled.Inc()
}

// RecordInsufficientStock увеличивает счётчик отказов из-за нехватки стока.
func (m *CommerceMetrics) RecordInsufficientStock() {
	m.insufficientStock.Inc()
}

// RecordWebhookEvent увеличивает счётчик событий шлюза по результату обработки.
func (m *CommerceMetrics) RecordWebhookEvent(result string) {
	m.webhookEvents.WithLabelValues(result).Inc()
}

// RecordApprovalTransition увеличивает счётчик переходов статусов сборок.
func (m *CommerceMetrics) RecordApprovalTransition(action string) {
	m.approvalTransitions.WithLabelValues(action).Inc()
}

// RecordReceiptSend увеличивает счётчик отправленных чеков.
func (m *CommerceMetrics) RecordReceiptSend() {
	m.receiptSends.Inc()
}

// RecordReceiptError увеличивает счётчик сбоев отправки чека.
func (m *CommerceMetrics) RecordReceiptError() {
	m.receiptErrors.Inc()
}

// RecordCheckoutDuration записывает время оформления заказа.
func (m *CommerceMetrics) RecordCheckoutDuration(duration time.Duration) {
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordAuditEntry увеличивает счётчик записей аудита.
func (m *CommerceMetrics) RecordAuditEntry() {
	m.auditEntries.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CommerceMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
