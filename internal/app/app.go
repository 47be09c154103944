package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/api"
	"github.com/ayo6706/crossborder-liquidity/internal/cache"
	"github.com/ayo6706/crossborder-liquidity/internal/config"
	"github.com/ayo6706/crossborder-liquidity/internal/db"
	"github.com/ayo6706/crossborder-liquidity/internal/events"
	"github.com/ayo6706/crossborder-liquidity/internal/lock"
	"github.com/ayo6706/crossborder-liquidity/internal/observability"
	"github.com/ayo6706/crossborder-liquidity/internal/provider"
	"github.com/ayo6706/crossborder-liquidity/internal/repository"
	"github.com/ayo6706/crossborder-liquidity/internal/service"
	"github.com/ayo6706/crossborder-liquidity/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and the settlement, rebalance and
// reconciliation workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	shutdownTracing := observability.InitTracing(cfg.TraceSampleRatio)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	store := repository.NewStore(pool)
	currencies := service.NewCurrencyService(store.Queries(), cache.New(redisClient, "currency"), cfg.CurrencyCacheTTL, cfg.MarginRates)
	rates := service.NewExchangeRateService(store, currencies, cache.New(redisClient, "fx"), cfg.RateCacheTTL)
	liquidity := service.NewLiquidityService(store)
	transactions := service.NewTransactionStore(store)

	rail := provider.NewBreakerProvider(provider.NewDummyProvider(), provider.BreakerConfig{
		Name:                "transfer-provider",
		ConsecutiveFailures: cfg.ProviderBreakerFailures,
		OpenTimeout:         cfg.ProviderBreakerTimeout,
	})

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("publishing transfer events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	transferSvc := service.NewTransferService(transactions, currencies, rates, liquidity, rail, publisher)
	settlementSvc := service.NewSettlementService(transactions, liquidity, publisher, service.SettlementConfig{
		PollSize:    cfg.SettlementPollSize,
		Lease:       cfg.SettlementLease,
		MaxAttempts: cfg.MaxSettlementAttempts,
	})
	rebalanceSvc := service.NewRebalanceService(transactions, liquidity, lock.NewLocker(redisClient, cfg.RebalanceInterval), service.RebalanceConfig{
		Lookback:     cfg.RebalanceLookback,
		Threshold:    cfg.RebalanceThreshold,
		MinAmount:    cfg.RebalanceMinAmount,
		SafetyBuffer: cfg.RebalanceSafetyBuffer,
	})
	reconciliationSvc := service.NewReconciliationService(store.Queries())

	stopSettlement := worker.NewSettlementWorker(settlementSvc).
		WithPollInterval(cfg.SettlementPollInterval).
		Run(ctx)
	stopRebalance := worker.NewRebalanceWorker(rebalanceSvc).
		WithInterval(cfg.RebalanceInterval).
		Run(ctx)
	stopReconciliation := worker.NewReconciliationWorker(reconciliationSvc).
		WithInterval(cfg.ReconciliationInterval).
		Run(ctx)
	logger.Info("workers started",
		zap.Duration("settlement_interval", cfg.SettlementPollInterval),
		zap.Duration("rebalance_interval", cfg.RebalanceInterval),
		zap.Duration("reconciliation_interval", cfg.ReconciliationInterval),
	)

	router := api.NewRouter(api.Dependencies{
		Logger:             logger,
		DB:                 pool,
		Redis:              redisClient,
		Transfers:          transferSvc,
		Rates:              rates,
		Pools:              liquidity,
		PublicRateLimitRPS: cfg.PublicRateLimitRPS,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopSettlement()
	stopRebalance()
	stopReconciliation()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	if err := publisher.Close(); err != nil {
		logger.Error("event publisher close failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracer shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
