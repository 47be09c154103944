package api

import (
	"net/http"

	"github.com/ayo6706/crossborder-liquidity/internal/api/handler"
	"github.com/ayo6706/crossborder-liquidity/internal/api/middleware"
	"github.com/ayo6706/crossborder-liquidity/internal/api/spec"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	Logger             *zap.Logger
	DB                 handler.Pinger
	Redis              redis.Cmdable
	Transfers          handler.TransferExecutor
	Rates              handler.RateBook
	Pools              handler.PoolReader
	PublicRateLimitRPS int
}

type Router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.PublicRateLimitRPS <= 0 {
		deps.PublicRateLimitRPS = 50
	}
	return &Router{deps: deps}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.deps.Logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RecoverMiddleware(api.deps.Logger))

	healthHandler := handler.NewHealthHandler(api.deps.DB, api.deps.Redis)
	transferHandler := handler.NewTransferHandler(api.deps.Transfers)
	rateHandler := handler.NewExchangeRateHandler(api.deps.Rates)
	poolHandler := handler.NewPoolHandler(api.deps.Pools)

	// Operational
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/swagger/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/openapi.yaml")))

	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.deps.PublicRateLimitRPS))

		r.Post("/v1/transfers", transferHandler.CreateTransfer)
		r.Post("/v1/fx-rates", rateHandler.AddRate)
		r.Get("/v1/fx-rates/{from}/{to}", rateHandler.GetLatestRate)
		r.Get("/v1/pools/{currency}", poolHandler.GetPool)
	})

	return r
}
