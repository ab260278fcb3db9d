package connection

import (
	"time"
)

// Param is a single query parameter. A slice of Params preserves order and
// allows the same key to appear more than once (e.g. several fields=
// entries), which a map cannot express.
type Param struct {
	Key   string
	Value string
}

// Request describes one logical API call. A Request is built fresh per call
// and discarded afterwards; the Connection never retains it.
type Request struct {
	// Method is the HTTP method (GET, POST, PUT, PATCH, DELETE).
	Method string

	// Path is the API path, inserted verbatim into the URL template
	// after the version segment (e.g. "/b/my-bucket/o/my-object").
	Path string

	// QueryParams holds unique-key query parameters.
	QueryParams map[string]string

	// QueryPairs holds ordered query parameters and supports repeated
	// keys. When non-empty it takes precedence over QueryParams.
	QueryPairs []Param

	// Data is the request body. A map or struct is serialized to JSON
	// (forcing Content-Type: application/json); []byte and string pass
	// through unmodified; nil sends no body.
	Data any

	// ContentType sets the Content-Type header for non-JSON bodies.
	ContentType string

	// Headers are per-call headers. Connection-level extra headers are
	// layered on top and win on key collision.
	Headers map[string]string

	// APIBaseURL overrides the connection's endpoint for this call.
	APIBaseURL string

	// APIVersion overrides the connection's API version for this call.
	APIVersion string

	// Timeout bounds a single attempt. Zero means the HTTP client's
	// configured timeout applies alone.
	Timeout time.Duration

	// Retry selects the retry behavior for this call. Nil means a single
	// attempt with no retry wrapping.
	Retry RetryPolicy
}

// query returns the effective query parameters as ordered pairs.
func (r *Request) query() []Param {
	if len(r.QueryPairs) > 0 {
		return r.QueryPairs
	}
	pairs := make([]Param, 0, len(r.QueryParams))
	for k, v := range r.QueryParams {
		pairs = append(pairs, Param{Key: k, Value: v})
	}
	return pairs
}

// queryValue returns the first value for key, from whichever form of query
// parameters the request carries.
func (r *Request) queryValue(key string) (string, bool) {
	if len(r.QueryPairs) > 0 {
		for _, p := range r.QueryPairs {
			if p.Key == key {
				return p.Value, true
			}
		}
		return "", false
	}
	v, ok := r.QueryParams[key]
	return v, ok
}
