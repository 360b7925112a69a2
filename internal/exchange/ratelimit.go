// ratelimit.go implements token-bucket rate limiting for the exchange API.
//
// The exchange enforces per-category request limits on short windows. This
// file provides a smooth token-bucket implementation that refills
// continuously (rather than in window-sized bursts) to stay clear of hard
// limits.
//
// Three buckets are maintained:
//   - Trade:  order placement and position close
//   - Cancel: order cancellation
//   - Market: public ticker/instrument reads
package exchange

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token-bucket rate limiter with continuous refill.
// Callers block in Wait() until a token is available or the context is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64   // current available tokens (fractional allowed)
	capacity float64   // maximum burst size
	rate     float64   // tokens refilled per second
	lastTime time.Time // last time tokens were calculated
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		// Calculate wait time for next token
		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			// retry
		}
	}
}

// RateLimiter groups token buckets by exchange endpoint category. Each call
// waits on the appropriate bucket before making the HTTP request.
type RateLimiter struct {
	Trade  *TokenBucket // private/create-order, private/close-position
	Cancel *TokenBucket // private/cancel-all-orders
	Market *TokenBucket // public/get-tickers, public/get-instruments
}

// NewRateLimiter creates rate limiters tuned to the exchange's published
// limits. Capacities are set to the 1-second burst allowance, rates to the
// sustained per-second limit.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Trade:  NewTokenBucket(15, 15), // 15 requests per 100ms category, kept well under
		Cancel: NewTokenBucket(15, 15),
		Market: NewTokenBucket(100, 50),
	}
}

// bucketFor routes an API method to its category bucket.
func (rl *RateLimiter) bucketFor(method string) *TokenBucket {
	switch method {
	case MethodCreateOrder, MethodClosePosition:
		return rl.Trade
	case MethodCancelAllOrders:
		return rl.Cancel
	default:
		return rl.Market
	}
}
