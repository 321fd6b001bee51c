package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pcshop/internal/cache"
	"github.com/vladislavdragonenkov/pcshop/internal/metrics"
	"github.com/vladislavdragonenkov/pcshop/internal/service/approval"
	"github.com/vladislavdragonenkov/pcshop/internal/service/catalog"
	"github.com/vladislavdragonenkov/pcshop/internal/service/checkout"
	"github.com/vladislavdragonenkov/pcshop/internal/service/payment"
)

const (
	requestTimeout   = 15 * time.Second
	defaultListLimit = 100
)

// API собирает HTTP-обработчики магазина поверх доменных сервисов.
type API struct {
	catalog       *catalog.Service
	checkout      *checkout.Service
	payments      *payment.Service
	approval      *approval.Service
	statusCache   *cache.OrderStatusCache
	webhookSecret []byte
	metrics       *metrics.CommerceMetrics
	logger        *log.Entry
}

// Options — необязательные зависимости API.
type Options struct {
	// StatusCache включает Redis-кэш статусов заказов.
	StatusCache *cache.OrderStatusCache
	// Metrics используется для счётчиков уровня транспорта.
	Metrics *metrics.CommerceMetrics
	Logger  *log.Entry
}

// NewAPI создаёт обработчики HTTP API.
func NewAPI(
	catalogSvc *catalog.Service,
	checkoutSvc *checkout.Service,
	paymentsSvc *payment.Service,
	approvalSvc *approval.Service,
	webhookSecret []byte,
	opts Options,
) *API {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	return &API{
		catalog:       catalogSvc,
		checkout:      checkoutSvc,
		payments:      paymentsSvc,
		approval:      approvalSvc,
		statusCache:   opts.StatusCache,
		webhookSecret: webhookSecret,
		metrics:       opts.Metrics,
		logger:        logger,
	}
}

// Router собирает маршруты магазина.
func (a *API) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Route("/catalog", func(r chi.Router) {
		r.Get("/", a.listCatalog)
		r.Get("/{id}", a.getStockItem)
		r.Put("/{id}", a.upsertStockItem)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", a.createOrder)
		r.Get("/", a.listMyOrders)
		r.Get("/{id}", a.getOrder)
		r.Get("/{id}/status", a.getOrderStatus)
		r.Patch("/{id}", a.patchOrder)
	})

	r.Post("/webhook/payment", a.paymentWebhook)

	r.Route("/configurations", func(r chi.Router) {
		r.Post("/", a.createConfiguration)
		r.Get("/", a.listPublicConfigurations)
		r.Get("/{id}", a.getConfiguration)
		r.Put("/{id}/components", a.updateConfigurationComponents)
		r.Post("/{id}/submit", a.submitConfiguration)
		r.Post("/{id}/approve", a.approveConfiguration)
		r.Post("/{id}/reject", a.rejectConfiguration)
		r.Post("/{id}/publish", a.publishConfiguration)
	})

	return r
}
