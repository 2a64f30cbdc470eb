package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redisStore "qrpay-gateway/internal/adapter/storage/redis"
	"qrpay-gateway/pkg/apperror"
	"qrpay-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Rate-limited endpoint groups.
const (
	GroupRegister  = "wallets_register"
	GroupOrders    = "orders"
	GroupPayments  = "payments"
	GroupTransfers = "transfers"
	GroupReads     = "reads"
	GroupAdmin     = "admin"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// Limiter is the fixed-window counter behind RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*redisStore.RateLimitResult, error)
}

// DefaultRateLimitRules scales the per-group limits from the configured
// base limit (requests per window for money-moving routes).
func DefaultRateLimitRules(base int64, window time.Duration) map[string]RateLimitRule {
	if base <= 0 {
		base = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return map[string]RateLimitRule{
		GroupPayments:  {Limit: base, Window: window},
		GroupTransfers: {Limit: base, Window: window},
		GroupOrders:    {Limit: base, Window: window},
		GroupReads:     {Limit: base * 3, Window: window},
		GroupAdmin:     {Limit: base / 2, Window: window},
		GroupRegister:  {Limit: max(base/20, 1), Window: window},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
func RateLimiter(store Limiter, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := extractIdentifier(c)
		key := fmt.Sprintf("%s:%s", identifier, group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		// Always set rate limit headers
		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys admins by subject and everyone else by client IP.
func extractIdentifier(c *gin.Context) string {
	if admin := c.GetString(CtxAdminID); admin != "" {
		return "admin:" + admin
	}
	return c.ClientIP()
}
