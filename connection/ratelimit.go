package connection

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a request is rejected by the client-side
// rate limiter in fail-fast mode.
var ErrRateLimited = errors.New("client-side rate limit exceeded")

// RateLimitConfig configures client-side rate limiting across all calls
// issued through one Connection.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained attempt rate. Zero or negative
	// disables limiting.
	RequestsPerSecond float64

	// Burst allows brief spikes above the sustained rate.
	Burst int

	// WaitOnLimit selects the behavior at the limit: wait for a token
	// (respecting the context deadline) or fail fast with ErrRateLimited.
	WaitOnLimit bool
}

// DefaultRateLimitConfig allows 100 attempts per second with a burst of 10.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

func newRateLimiter(cfg *RateLimitConfig) *rate.Limiter {
	if cfg == nil || cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// acquireToken gates one attempt on the rate limiter, if one is installed.
func (c *Connection) acquireToken(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if c.waitOnLimit {
		if err := c.limiter.Wait(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return err
			}
			return ErrRateLimited
		}
		return nil
	}
	if !c.limiter.Allow() {
		return ErrRateLimited
	}
	return nil
}
