/**
 * Token bucket rate limiter for the remote service API
 *
 * Features:
 * - Token bucket algorithm via golang.org/x/time/rate
 * - Separate, lower bucket for token minting (the auth endpoint throttles
 *   harder than the content API)
 * - Context-aware blocking
 * - Request metrics
 *
 * Author: box-fixer team
 */

package api

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

const (
	// Default rate limit (requests per second).
	defaultRateLimit = 10

	// Default burst size.
	defaultBurstSize = 20

	// Rate limit for token minting.
	authRateLimit = 2
)

// RateLimiter manages API request rate limiting.
type RateLimiter struct {
	limiter         *rate.Limiter
	authLimiter     *rate.Limiter
	totalRequests   atomic.Int64
	blockedRequests atomic.Int64
}

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	RateLimit     int
	BurstSize     int
	AuthRateLimit int
}

// DefaultRateLimiterConfig returns default configuration.
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		RateLimit:     defaultRateLimit,
		BurstSize:     defaultBurstSize,
		AuthRateLimit: authRateLimit,
	}
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config *RateLimiterConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimiterConfig()
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.BurstSize <= 0 {
		config.BurstSize = config.RateLimit * 2
	}
	if config.AuthRateLimit <= 0 {
		config.AuthRateLimit = authRateLimit
	}

	return &RateLimiter{
		limiter:     rate.NewLimiter(rate.Limit(config.RateLimit), config.BurstSize),
		authLimiter: rate.NewLimiter(rate.Limit(config.AuthRateLimit), config.AuthRateLimit),
	}
}

// Wait blocks until a content API request can proceed.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.waitWithLimiter(ctx, rl.limiter)
}

// WaitForAuth blocks until a token-mint request can proceed.
func (rl *RateLimiter) WaitForAuth(ctx context.Context) error {
	return rl.waitWithLimiter(ctx, rl.authLimiter)
}

func (rl *RateLimiter) waitWithLimiter(ctx context.Context, limiter *rate.Limiter) error {
	rl.totalRequests.Add(1)

	if limiter.Allow() {
		return nil
	}

	rl.blockedRequests.Add(1)
	return limiter.Wait(ctx)
}

// Stats returns total and blocked request counts.
func (rl *RateLimiter) Stats() (total, blocked int64) {
	return rl.totalRequests.Load(), rl.blockedRequests.Load()
}
