package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrpay-gateway/config"
	httpHandler "qrpay-gateway/internal/adapter/http/handler"
	"qrpay-gateway/internal/adapter/http/middleware"
	"qrpay-gateway/internal/adapter/storage/memory"
	"qrpay-gateway/internal/adapter/storage/occ"
	pgStorage "qrpay-gateway/internal/adapter/storage/postgres"
	redisStorage "qrpay-gateway/internal/adapter/storage/redis"
	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/internal/metrics"
	"qrpay-gateway/internal/service"
	"qrpay-gateway/pkg/logger"

	"github.com/rs/zerolog"
)

// stores bundles whichever backend the config selected.
type stores struct {
	transactor ports.Transactor
	wallets    ports.WalletStore
	orders     ports.OrderStore
	ledger     ports.LedgerStore
	idem       ports.IdempotencyStore
	health     []ports.HealthChecker
	close      func()
}

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("store", cfg.Store.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting QR Pay Gateway")

	ctx := context.Background()
	metrics.Init()

	policy := occ.Policy{
		MaxAttempts: cfg.Ledger.MaxAttempts,
		BaseBackoff: cfg.Ledger.BaseBackoff,
		MaxBackoff:  cfg.Ledger.MaxBackoff,
	}

	st, err := openStores(ctx, cfg, policy, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.close()

	// Redis is optional: without it there is no idempotency fast path and no rate limiting.
	var (
		idempotencyCache ports.IdempotencyCache
		rateLimitStore   middleware.Limiter
	)
	healthCheckers := st.health
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, logger.Component(log, "redis"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		idempotencyCache = redisStorage.NewIdempotencyCache(rdb)
		if cfg.RateLimit.Enabled {
			rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		}
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
	}

	// Initialize core services
	engineLog := logger.Component(log, "ledger")
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	engine := service.NewTransactionEngine(st.transactor, idempotencyCache, cfg.Ledger.IdempotencyTTL, engineLog)
	adjustments := service.NewAdjustmentEngine(st.transactor, idempotencyCache, cfg.Ledger.IdempotencyTTL, engineLog)
	allocator := service.NewAccountAllocator(st.wallets, service.AccountAllocatorConfig{
		Prefix:      cfg.Wallet.AccountPrefix,
		Digits:      cfg.Wallet.AccountDigits,
		MaxAttempts: cfg.Wallet.AllocationAttempts,
	}, nil, logger.Component(log, "allocator"))
	walletSvc := service.NewWalletService(
		st.wallets,
		st.transactor,
		allocator,
		cfg.Wallet.StartingBalance,
		cfg.Wallet.RegistrationAttempts,
		logger.Component(log, "wallets"),
	)
	orderSvc := service.NewOrderService(st.orders, st.transactor, logger.Component(log, "orders"))
	ledgerSvc := service.NewLedgerService(st.ledger, st.wallets, st.orders, st.idem, logger.Component(log, "audit"))

	sweeper := service.NewOrderSweeper(orderSvc, cfg.Orders.TTL, cfg.Orders.SweepInterval, cfg.Orders.SweepBatch, logger.Component(log, "sweeper"))
	sweeper.Start()
	defer sweeper.Stop()

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Engine:         engine,
		Adjustments:    adjustments,
		WalletSvc:      walletSvc,
		OrderSvc:       orderSvc,
		LedgerSvc:      ledgerSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		RateLimitRules: middleware.DefaultRateLimitRules(cfg.RateLimit.Limit, cfg.RateLimit.Window),
		HealthCheckers: healthCheckers,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Mode:           cfg.Server.Mode,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func openStores(ctx context.Context, cfg *config.Config, policy occ.Policy, log zerolog.Logger) (*stores, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		store := memory.New(policy, logger.Component(log, "memory"))
		log.Warn().Msg("Using in-memory store, state is lost on restart")
		return &stores{
			transactor: store,
			wallets:    store.Wallets(),
			orders:     store.Orders(),
			ledger:     store.Ledger(),
			idem:       store.Idempotency(),
			close:      func() {},
		}, nil

	case config.DriverPostgres:
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		log.Info().Msg("PostgreSQL connected")

		if cfg.Store.Migrate {
			if err := pgStorage.Migrate(ctx, pool, log); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}

		return &stores{
			transactor: pgStorage.NewTransactor(pool, policy, logger.Component(log, "postgres")),
			wallets:    pgStorage.NewWalletRepo(pool),
			orders:     pgStorage.NewOrderRepo(pool),
			ledger:     pgStorage.NewLedgerRepo(pool),
			idem:       pgStorage.NewIdempotencyRepo(pool),
			health:     []ports.HealthChecker{pgStorage.NewHealthCheck(pool)},
			close:      pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
