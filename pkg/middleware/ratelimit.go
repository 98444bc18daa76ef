package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/optionescrow/pkg/config"
	"github.com/wyfcoding/optionescrow/pkg/logger"
	"github.com/wyfcoding/optionescrow/pkg/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// RateLimitMiddleware creates a Gin middleware for rate limiting.
// Callers are keyed by X-Sender when present, otherwise by client IP.
func RateLimitMiddleware(limiter ratelimit.RateLimiter, cfg config.RateLimitConfig) gin.HandlerFunc {
	limit := ratelimit.FromConfig(cfg)
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		caller := c.GetHeader("X-Sender")
		if caller == "" {
			caller = c.ClientIP()
		}
		res, err := limiter.Allow(c.Request.Context(), ratelimit.Key("http", caller), limit)
		if err != nil {
			// Fail open if rate limiter fails
			logger.Warn(c.Request.Context(), "Rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		for k, v := range res.Headers(limit) {
			c.Header(k, v)
		}

		if !res.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "rate_limited",
				"message": "too many requests, retry after " + res.RetryAfter.String(),
			})
			return
		}

		c.Next()
	}
}

// GRPCRateLimitInterceptor applies the same limit to gRPC callers keyed by peer address.
func GRPCRateLimitInterceptor(limiter ratelimit.RateLimiter, cfg config.RateLimitConfig) grpc.UnaryServerInterceptor {
	limit := ratelimit.FromConfig(cfg)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !cfg.Enabled {
			return handler(ctx, req)
		}
		caller := "unknown"
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			caller = p.Addr.String()
		}
		res, err := limiter.Allow(ctx, ratelimit.Key("grpc", caller), limit)
		if err != nil {
			logger.Warn(ctx, "Rate limiter unavailable", "error", err)
			return handler(ctx, req)
		}
		if !res.Allowed {
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded, retry after %s", res.RetryAfter)
		}
		return handler(ctx, req)
	}
}
