package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles connection acceptance with a token bucket.
//
// The acceptor calls Wait before every Accept so a burst of incoming
// connections cannot outrun the worker pool. A limiter built with a zero rate
// never blocks.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter admitting perSecond connections per second with
// the given burst. A zero perSecond disables throttling; a zero burst defaults
// to perSecond.
func New(perSecond, burst uint) *RateLimiter {
	if perSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = perSecond
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst)),
	}
}

// Unlimited reports whether the limiter never throttles.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

// Allow consumes a token without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.Unlimited() {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// Tokens returns the number of tokens currently in the bucket.
// Used for stats logging only; the value is stale as soon as it is read.
func (r *RateLimiter) Tokens() float64 {
	if r.Unlimited() {
		return 0
	}
	return r.limiter.Tokens()
}
