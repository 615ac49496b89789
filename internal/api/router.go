package api

import (
	"net/http"

	"github.com/gigpay/taskpay/internal/api/handler"
	"github.com/gigpay/taskpay/internal/api/middleware"
	"github.com/gigpay/taskpay/internal/config"
	"github.com/gigpay/taskpay/internal/gateway"
	"github.com/gigpay/taskpay/internal/idempotency"
	"github.com/gigpay/taskpay/internal/repository"
	"github.com/gigpay/taskpay/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Router struct {
	cfg    *config.Config
	db     *pgxpool.Pool
	redis  redis.Cmdable
	store  *repository.Store
	gw     gateway.Gateway
	idem   *idempotency.Store
	logger *zap.Logger
}

func NewRouter(cfg *config.Config, db *pgxpool.Pool, rdb redis.Cmdable, store *repository.Store, gw gateway.Gateway, idem *idempotency.Store, logger *zap.Logger) *Router {
	return &Router{cfg: cfg, db: db, redis: rdb, store: store, gw: gw, idem: idem, logger: logger}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	gwCfg := gateway.Config{
		APIURL:     api.cfg.GatewayAPIURL,
		MchNo:      api.cfg.GatewayMchNo,
		AppID:      api.cfg.GatewayAppID,
		PrivateKey: api.cfg.GatewayPrivateKey,
		NotifyURL:  api.cfg.GatewayNotifyURL,
		ReturnURL:  api.cfg.GatewayReturnURL,
		Timeout:    api.cfg.GatewayTimeout,
	}

	// Services
	ledgerSvc := service.NewLedgerService(api.store)
	payoutSvc := service.NewPayoutService(api.store)
	allocSvc := service.NewAllocationService(api.store)
	pricer := service.FixedRatePricer{Rate: api.cfg.PayinCommission}
	orderSvc := service.NewPayinOrderService(api.store, api.gw, gwCfg, pricer, api.cfg.PayinOrderTTL)

	// Handlers
	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	balanceHandler := handler.NewBalanceHandler(ledgerSvc, api.store)
	accountHandler := handler.NewAccountHandler(repository.New(api.db))
	payoutHandler := handler.NewPayoutHandler(payoutSvc)
	allocHandler := handler.NewAllocationHandler(allocSvc)
	orderHandler := handler.NewPayinOrderHandler(orderSvc)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Get("/healthz", healthHandler.Live)
		r.Get("/readyz", healthHandler.Ready)
		r.Post("/v1/payin-orders/notify", orderHandler.Notify)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/balance", balanceHandler.GetBalance)
		r.Get("/v1/balance/records", balanceHandler.GetRecords)
		r.Get("/v1/balance/reconcile", balanceHandler.Reconcile)

		r.Post("/v1/accounts", accountHandler.Create)
		r.Get("/v1/accounts/{id}", accountHandler.Get)

		r.Get("/v1/payout-orders", payoutHandler.ListAvailable)
		r.Get("/v1/payout-orders/claimed", payoutHandler.ListClaimed)
		r.Post("/v1/payout-orders/{id}/claim", payoutHandler.Claim)
		r.Put("/v1/payout-orders/{id}/proof", payoutHandler.UploadProof)
		r.Post("/v1/payout-orders/{id}/complete", payoutHandler.Complete)

		r.Get("/v1/allocations", allocHandler.List)
		r.Post("/v1/allocations/{id}/claim", allocHandler.Claim)
		r.Put("/v1/allocations/{id}/proof", allocHandler.UploadProof)
		r.Post("/v1/allocations/{id}/confirm", allocHandler.Confirm)

		r.Get("/v1/payin-orders/active", orderHandler.Active)
		r.With(middleware.IdempotencyMiddleware(api.idem, api.logger)).
			Post("/v1/payin-orders", orderHandler.Create)
		r.Post("/v1/payin-orders/{id}/confirm", orderHandler.ConfirmReceipt)
	})

	return r
}
