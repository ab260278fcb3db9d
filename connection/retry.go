package connection

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
)

// RetryPolicy selects the retry behavior for one logical API call. The two
// implementations are *Retry (unconditional) and *ConditionalRetry (applies
// only when the request shape makes repetition safe).
type RetryPolicy interface {
	// policyFor returns the concrete policy to install for the request,
	// or nil for a single attempt with no retry wrapping.
	policyFor(req *Request) *Retry
}

// Retry re-invokes a failed attempt under exponential backoff with jitter.
// The zero value is not useful; start from DefaultRetry and adjust fields.
//
// A Retry holds configuration only. Backoff state is created fresh for
// every logical call, so one policy value can safely be shared across
// goroutines and calls.
type Retry struct {
	// InitialInterval is the first backoff interval.
	InitialInterval time.Duration

	// MaxInterval caps the per-attempt backoff interval.
	MaxInterval time.Duration

	// Multiplier controls exponential growth between attempts.
	Multiplier float64

	// JitterFactor randomizes each interval (0.0-1.0) to avoid
	// synchronized retry storms.
	JitterFactor float64

	// MaxAttempts bounds the total number of attempts, the first one
	// included. Zero means no attempt bound (MaxElapsedTime still
	// applies).
	MaxAttempts uint

	// MaxElapsedTime is the total time budget for all attempts.
	MaxElapsedTime time.Duration

	// ShouldRetry decides whether a failed attempt is worth repeating.
	// Nil falls back to the default predicate (transient API reasons and
	// transient network errors).
	ShouldRetry func(error) bool
}

// DefaultRetry returns the stock retry policy: exponential backoff from 1s
// up to 60s, a two minute budget, and the default transient-error
// predicate.
func DefaultRetry() *Retry {
	return &Retry{
		InitialInterval: 1 * time.Second,
		MaxInterval:     60 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.5,
		MaxElapsedTime:  2 * time.Minute,
	}
}

func (r *Retry) policyFor(*Request) *Retry { return r }

// do runs operation under this policy. notify, when non-nil, observes each
// scheduled retry with the error that caused it and the upcoming delay.
func (r *Retry) do(
	ctx context.Context,
	notify backoff.Notify,
	operation func() ([]byte, error),
) ([]byte, error) {
	pred := r.ShouldRetry
	if pred == nil {
		pred = shouldRetry
	}

	attempt := func() ([]byte, error) {
		out, err := operation()
		if err != nil {
			if pred(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return out, nil
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(r.backOff()),
	}
	if r.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(r.MaxAttempts))
	}
	if r.MaxElapsedTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(r.MaxElapsedTime))
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(notify))
	}

	return backoff.Retry(ctx, attempt, opts...)
}

// backOff builds fresh backoff state for one logical call.
func (r *Retry) backOff() backoff.BackOff {
	jitter := r.JitterFactor
	if jitter <= 0 {
		jitter = 0.5
	}
	return &backoff.ExponentialBackOff{
		InitialInterval:     r.InitialInterval,
		RandomizationFactor: jitter,
		Multiplier:          r.Multiplier,
		MaxInterval:         r.MaxInterval,
	}
}

// ConditionalRetry installs its inner policy only when Predicate accepts
// the request. It replaces runtime capability probing with an explicit
// variant: evaluation happens once, before the first attempt, and a nil
// result means the call runs exactly once.
type ConditionalRetry struct {
	// Policy is the retry policy to install when the predicate holds.
	Policy *Retry

	// Predicate inspects the request and reports whether repeating it is
	// safe (typically: an idempotency-enabling precondition is present).
	Predicate func(req *Request) bool
}

// Evaluate returns the policy to apply for req, or nil when the request
// must not be retried.
func (c *ConditionalRetry) Evaluate(req *Request) *Retry {
	if c.Policy == nil || c.Predicate == nil || !c.Predicate(req) {
		return nil
	}
	return c.Policy
}

func (c *ConditionalRetry) policyFor(req *Request) *Retry { return c.Evaluate(req) }

// resolvePolicy collapses an optional policy into the concrete retry to
// install, or nil.
func resolvePolicy(policy RetryPolicy, req *Request) *Retry {
	if policy == nil {
		return nil
	}
	return policy.policyFor(req)
}

// GenerationSpecified reports whether the request pins an object
// generation, either directly or via an ifGenerationMatch precondition.
func GenerationSpecified(req *Request) bool {
	if _, ok := req.queryValue("generation"); ok {
		return true
	}
	_, ok := req.queryValue("ifGenerationMatch")
	return ok
}

// MetagenerationSpecified reports whether the request carries an
// ifMetagenerationMatch precondition.
func MetagenerationSpecified(req *Request) bool {
	_, ok := req.queryValue("ifMetagenerationMatch")
	return ok
}

// EtagInJSON reports whether the request body carries an etag, which makes
// a metadata rewrite conditional server-side and therefore safe to repeat.
func EtagInJSON(req *Request) bool {
	var doc map[string]any
	switch data := req.Data.(type) {
	case nil:
		return false
	case map[string]any:
		doc = data
	case []byte:
		if json.Unmarshal(data, &doc) != nil {
			return false
		}
	case string:
		if json.Unmarshal([]byte(data), &doc) != nil {
			return false
		}
	default:
		raw, err := json.Marshal(data)
		if err != nil {
			return false
		}
		if json.Unmarshal(raw, &doc) != nil {
			return false
		}
	}
	etag, ok := doc["etag"].(string)
	return ok && etag != ""
}

// Stock conditional policies mirroring the service's idempotency rules.
func DefaultRetryIfGenerationSpecified() *ConditionalRetry {
	return &ConditionalRetry{Policy: DefaultRetry(), Predicate: GenerationSpecified}
}

func DefaultRetryIfMetagenerationSpecified() *ConditionalRetry {
	return &ConditionalRetry{Policy: DefaultRetry(), Predicate: MetagenerationSpecified}
}

func DefaultRetryIfEtagInJSON() *ConditionalRetry {
	return &ConditionalRetry{Policy: DefaultRetry(), Predicate: EtagInJSON}
}
