package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pcshop/internal/cache"
	"github.com/vladislavdragonenkov/pcshop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/pcshop/internal/health"
	"github.com/vladislavdragonenkov/pcshop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pcshop/internal/metrics"
	"github.com/vladislavdragonenkov/pcshop/internal/notify"
	"github.com/vladislavdragonenkov/pcshop/internal/service/approval"
	"github.com/vladislavdragonenkov/pcshop/internal/service/catalog"
	"github.com/vladislavdragonenkov/pcshop/internal/service/checkout"
	"github.com/vladislavdragonenkov/pcshop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/pcshop/internal/service/outbox"
	"github.com/vladislavdragonenkov/pcshop/internal/service/payment"
	httpapi "github.com/vladislavdragonenkov/pcshop/internal/transport/http"
	"github.com/vladislavdragonenkov/pcshop/internal/version"
)

// Run поднимает приложение и блокируется до отмены контекста или
// фатальной ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	producer := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	var receipts domain.ReceiptNotifier
	if producer != nil {
		receipts = notify.NewKafkaReceiptNotifier(producer, nil)
	} else {
		receipts = notify.NewLogReceiptNotifier(nil)
	}

	var (
		deduper payment.EventDeduper
		apiOpts httpapi.Options
	)
	apiOpts.Metrics = metrics.NewCommerceMetrics()
	if deps.Redis != nil {
		deduper = cache.NewWebhookDeduper(deps.Redis)
		apiOpts.StatusCache = cache.NewOrderStatusCache(deps.Redis)
	}

	if cfg.WebhookSecret == "" {
		logger.Warn("webhook secret is empty, all payment webhooks will be rejected")
	}

	api := httpapi.NewAPI(
		catalog.NewService(deps.Stock, deps.Audit, nil),
		checkout.NewService(deps.Orders, deps.Stock, deps.Configs, deps.Audit, deps.Outbox, receipts, nil),
		payment.NewService(deps.Orders, deps.Events, deps.Audit, deps.Outbox, receipts, deduper, nil),
		approval.NewService(deps.Configs, deps.Stock, deps.Audit, nil),
		[]byte(cfg.WebhookSecret),
		apiOpts,
	)

	if producer != nil {
		worker := outbox.NewWorker(
			deps.Outbox,
			kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		go worker.Run(ctx)
	}

	// Записи дедупликации webhook чистятся по той же границе, что и
	// Redis-ключи быстрого пути, чтобы оба рубежа помнили события
	// одинаково долго.
	janitor := idempotency.NewCleanupWorker(
		deps.Events,
		idempotency.WithRetention(cfg.WebhookRetention),
	)
	go janitor.Run(ctx)

	healthHandler := healthcheck.NewHandler(version.String())
	if deps.Store != nil {
		healthHandler.Register("postgres", healthcheck.PostgresCheck(deps.Store.DB()))
	}
	if deps.Redis != nil {
		healthHandler.Register("redis", healthcheck.RedisCheck(deps.Redis))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Router()}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("graceful shutdown превысил таймаут")
			_ = srv.Close()
		}
		shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
		return ctx.Err()

	case err := <-errCh:
		shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer поднимает /metrics и /healthz на отдельном листенере.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, 5*time.Second, logger)
	}()

	return srv
}

func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
