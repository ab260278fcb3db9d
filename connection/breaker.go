package connection

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the optional circuit breaker installed by
// WithCircuitBreaker. The breaker wraps every attempt: while open, attempts
// fail immediately with gobreaker.ErrOpenState instead of reaching the
// transport.
type BreakerConfig struct {
	// Name identifies the breaker in state-change callbacks. Defaults to
	// "objstore-connection".
	Name string

	// MaxRequests is the number of probe requests allowed while
	// half-open.
	MaxRequests uint32

	// Interval is the cyclic period over which the closed-state counters
	// are cleared.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	// ConsecutiveFailures trips the breaker after this many sequential
	// failures. Zero disables the rule.
	ConsecutiveFailures uint32

	// FailureThreshold and FailureRatio trip the breaker once at least
	// FailureThreshold requests have been observed and the failure ratio
	// reaches FailureRatio.
	FailureThreshold uint32
	FailureRatio     float64

	// OnStateChange is invoked on every breaker state transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig trips after 5 consecutive failures or a 50% failure
// ratio over at least 20 requests, and probes again after 10s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		ConsecutiveFailures: 5,
		FailureThreshold:    20,
		FailureRatio:        0.5,
	}
}

// newBreaker builds the generic circuit breaker for the raw-body attempt
// path. Client errors (4xx) do not count as failures: they indicate a bad
// request, not a struggling service.
func newBreaker(cfg *BreakerConfig) *gobreaker.CircuitBreaker[[]byte] {
	if cfg == nil {
		return nil
	}

	name := cfg.Name
	if name == "" {
		name = "objstore-connection"
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 &&
				counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if cfg.FailureThreshold > 0 && counts.Requests < cfg.FailureThreshold {
				return false
			}
			if cfg.FailureRatio > 0 && counts.Requests > 0 {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= cfg.FailureRatio
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				// 4xx (429 included) is the caller's problem, not a
				// struggling service; only 5xx counts against the breaker.
				return apiErr.Code < 500
			}
			return false
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = cfg.OnStateChange
	}

	return gobreaker.NewCircuitBreaker[[]byte](settings)
}
