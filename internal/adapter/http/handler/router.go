package handler

import (
	"qrpay-gateway/internal/adapter/http/middleware"
	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Engine         ports.TransactionEngine
	Adjustments    ports.AdjustmentEngine
	WalletSvc      ports.WalletService
	OrderSvc       ports.OrderService
	LedgerSvc      ports.LedgerService
	TokenSvc       ports.TokenService
	RateLimitStore middleware.Limiter // nil = rate limiting disabled
	RateLimitRules map[string]middleware.RateLimitRule
	HealthCheckers []ports.HealthChecker
	MaxBodyBytes   int64
	Mode           string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.HTTPMetrics())
	r.Use(middleware.MaxBodySize(deps.MaxBodyBytes))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	rules := deps.RateLimitRules
	if rules == nil {
		rules = middleware.DefaultRateLimitRules(0, 0)
	}

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	walletHandler := NewWalletHandler(deps.WalletSvc, deps.LedgerSvc)
	wallets := v1.Group("/wallets")
	{
		wallets.POST("", rl(middleware.GroupRegister), walletHandler.Register)
		wallets.GET("/:id", rl(middleware.GroupReads), walletHandler.GetWallet)
		wallets.GET("/:id/ledger", rl(middleware.GroupReads), walletHandler.History)
	}

	orderHandler := NewOrderHandler(deps.OrderSvc, deps.LedgerSvc)
	orders := v1.Group("/orders")
	{
		orders.POST("", rl(middleware.GroupOrders), orderHandler.Create)
		orders.GET("/:id", rl(middleware.GroupReads), orderHandler.Get)
		orders.POST("/:id/cancel", rl(middleware.GroupOrders), orderHandler.Cancel)
		orders.GET("/:id/ledger", rl(middleware.GroupReads), orderHandler.History)
	}

	paymentHandler := NewPaymentHandler(deps.Engine)
	v1.POST("/payments", rl(middleware.GroupPayments), paymentHandler.ExecutePayment)
	v1.POST("/transfers", rl(middleware.GroupTransfers), paymentHandler.ExecuteTransfer)

	// --- JWT-authenticated admin routes ---
	adminHandler := NewAdminHandler(deps.Adjustments, deps.WalletSvc, deps.LedgerSvc)
	admin := v1.Group("/admin",
		middleware.AdminAuth(deps.TokenSvc, deps.Logger),
		middleware.AdminAudit(deps.Logger),
		rl(middleware.GroupAdmin),
	)
	{
		admin.POST("/adjustments", adminHandler.AdjustBalance)
		admin.PUT("/wallets/:id/points", adminHandler.SetPoints)
		admin.GET("/wallets", adminHandler.ListWallets)
		admin.GET("/reconciliation", adminHandler.Reconcile)
		admin.GET("/idempotency/:scope/:caller/:key", adminHandler.StoredResult)
	}

	return r
}
