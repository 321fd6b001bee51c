package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	// Шлюз не доставляет событие повторно дольше двух суток.
	defaultRetention = 48 * time.Hour
)

var (
	webhookCleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pcshop_webhook_event_cleanup_runs_total",
		Help: "Total number of webhook event cleanup runs grouped by result.",
	}, []string{"result"})
	webhookCleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pcshop_webhook_event_cleanup_deleted_total",
		Help: "Total number of deleted expired webhook event records.",
	})
	webhookCleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pcshop_webhook_event_cleanup_last_deleted",
		Help: "Number of deleted records during the last cleanup run.",
	})
)

// CleanupOptions задает параметры воркера очистки записей дедупликации webhook.
type CleanupOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	Retention time.Duration
	BatchSize int
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между cleanup-циклами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithRetention задает срок хранения обработанных событий.
func WithRetention(retention time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Retention = retention
	}
}

// WithBatchSize задает размер batch для одного удаления.
func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.BatchSize = batchSize
	}
}

// CleanupWorker периодически удаляет просроченные записи дедупликации
// платёжных webhook. Без него таблица webhook_events растёт неограниченно.
type CleanupWorker struct {
	events    domain.WebhookEventRepository
	logger    *log.Entry
	interval  time.Duration
	retention time.Duration
	batchSize int
}

// NewCleanupWorker создает воркер очистки webhook событий.
func NewCleanupWorker(events domain.WebhookEventRepository, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		Retention: defaultRetention,
		BatchSize: defaultCleanupBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "webhook-cleanup-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}

	return &CleanupWorker{
		events:    events,
		logger:    logger,
		interval:  opts.Interval,
		retention: opts.Retention,
		batchSize: opts.BatchSize,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.events == nil {
		w.logger.Warn("webhook cleanup worker is disabled: repo is nil")
		return
	}

	w.cleanup(ctx, time.Now().UTC())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx, time.Now().UTC())
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context, now time.Time) {
	deleted, err := w.DeleteExpired(ctx, now.Add(-w.retention))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		webhookCleanupRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("webhook event cleanup run failed")
		return
	}

	webhookCleanupRunsTotal.WithLabelValues("ok").Inc()
	webhookCleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("webhook event cleanup completed")
	}
}

// DeleteExpired удаляет все записи старше cutoff порциями batchSize.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	if cutoff.IsZero() {
		cutoff = time.Now().UTC().Add(-w.retention)
	}

	totalDeleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		deleted, err := w.events.DeleteProcessedBefore(cutoff, w.batchSize)
		if err != nil {
			return totalDeleted, err
		}

		totalDeleted += deleted
		if deleted > 0 {
			webhookCleanupDeletedTotal.Add(float64(deleted))
		}

		if deleted < w.batchSize {
			break
		}
	}

	return totalDeleted, nil
}
