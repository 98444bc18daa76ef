// Package ratelimit 基于 Redis GCRA 的调用方限流，HTTP 与 gRPC 共用
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/optionescrow/pkg/config"
)

// keyPrefix 限流键的命名空间
const keyPrefix = "ratelimit"

// RateLimiter 限流器
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

// Limit 每 Period 允许 Rate 次，突发上限 Burst
type Limit struct {
	Rate   int
	Period time.Duration
	Burst  int
}

// FromConfig 由配置生成限流规则，周期缺省 1s，Burst 缺省等于 Rate
func FromConfig(cfg config.RateLimitConfig) Limit {
	period := time.Duration(cfg.Period) * time.Second
	if period <= 0 {
		period = time.Second
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Rate
	}
	return Limit{Rate: cfg.Rate, Period: period, Burst: burst}
}

// Key 返回 ratelimit:<scope>:<caller>
func Key(scope, caller string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, scope, caller)
}

// Result 一次限流判定
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// Headers 响应头：X-RateLimit-*，被拒绝时附带 Retry-After（秒，向上取整）
func (r *Result) Headers(limit Limit) map[string]string {
	h := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(limit.Burst),
		"X-RateLimit-Remaining": strconv.Itoa(r.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(ceilSeconds(r.ResetAfter), 10),
	}
	if !r.Allowed {
		h["Retry-After"] = strconv.FormatInt(ceilSeconds(r.RetryAfter), 10)
	}
	return h
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

// RedisRateLimiter redis_rate 实现
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
}

func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(rdb),
	}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	res, err := r.limiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit.Rate,
		Period: limit.Period,
		Burst:  limit.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
		RetryAfter: res.RetryAfter,
	}, nil
}
