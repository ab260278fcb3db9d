package connection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Connection dispatches API requests against the storage service's JSON
// endpoint. One Connection is shared by all resource objects of a client;
// it carries no per-call state, so concurrent use from multiple goroutines
// is safe as long as configuration mutators (SetExtraHeaders, SetUserAgent)
// are called before requests start flowing.
type Connection struct {
	httpClient *http.Client

	// ownsClient records whether the HTTP client was built internally.
	// A caller-supplied client is never closed by Close.
	ownsClient bool
	closeOnce  sync.Once

	baseURL    string
	apiVersion string

	clientInfo ClientInfo
	userAgent  string

	extraHeaders map[string]string

	tracer  trace.Tracer
	metrics *metrics
	logger  zerolog.Logger

	limiter     *rate.Limiter
	waitOnLimit bool

	coalesceReads bool
	group         singleflight.Group

	breaker *gobreaker.CircuitBreaker[[]byte]
}

// New creates a Connection. Without WithHTTPClient, an HTTP client is built
// from the transport Config and owned by the connection; Close tears it
// down.
func New(opts ...Option) *Connection {
	cfg := newInternalConfig(opts...)

	httpClient := cfg.HTTPClient
	owns := false
	if httpClient == nil {
		httpClient = cfg.buildHTTPClient()
		owns = true
	}

	meter := cfg.MeterProvider.Meter(scope)
	m, _ := newMetrics(meter)

	c := &Connection{
		httpClient:    httpClient,
		ownsClient:    owns,
		baseURL:       cfg.BaseURL,
		apiVersion:    cfg.APIVersion,
		clientInfo:    cfg.ClientInfo,
		userAgent:     cfg.ClientInfo.agent(),
		extraHeaders:  cfg.ExtraHeaders,
		tracer:        cfg.TracerProvider.Tracer(scope),
		metrics:       m,
		logger:        cfg.Logger,
		limiter:       newRateLimiter(cfg.RateLimit),
		coalesceReads: cfg.CoalesceReads,
		breaker:       newBreaker(cfg.Breaker),
	}
	if cfg.RateLimit != nil {
		c.waitOnLimit = cfg.RateLimit.WaitOnLimit
	}
	return c
}

// ExtraHeaders returns the connection-wide header overrides.
func (c *Connection) ExtraHeaders() map[string]string {
	return c.extraHeaders
}

// SetExtraHeaders replaces the connection-wide header overrides. Call it
// before issuing requests; it is not synchronized against in-flight calls.
func (c *Connection) SetExtraHeaders(headers map[string]string) {
	c.extraHeaders = headers
}

// UserAgent returns the composed User-Agent value sent with every request.
func (c *Connection) UserAgent() string {
	return c.userAgent
}

// SetUserAgent replaces the caller-supplied User-Agent fragment. The
// library identifier stays appended.
func (c *Connection) SetUserAgent(fragment string) {
	c.clientInfo.UserAgent = fragment
	c.userAgent = c.clientInfo.agent()
}

// APIRequest performs one logical API call and decodes the JSON response.
// An empty success body yields an empty, non-nil document: many mutation
// endpoints legitimately return no content.
func (c *Connection) APIRequest(ctx context.Context, req *Request) (map[string]any, error) {
	raw, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{}
	if len(raw) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	return payload, nil
}

// APIRequestRaw performs one logical API call and returns the response
// body unmodified. Used for media downloads.
func (c *Connection) APIRequestRaw(ctx context.Context, req *Request) ([]byte, error) {
	return c.do(ctx, req)
}

// APIRequestInto performs one logical API call and decodes the JSON
// response into target. An empty success body leaves target untouched.
func (c *Connection) APIRequestInto(ctx context.Context, req *Request, target any) error {
	raw, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Close releases the connection's resources. It is idempotent and never
// touches a caller-supplied HTTP client.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		if c.ownsClient {
			c.httpClient.CloseIdleConnections()
		}
	})
	return nil
}

// do runs the full pipeline for one logical call: build URL, serialize
// body, resolve the retry policy, open the tracing span, then execute the
// (possibly retried, possibly coalesced) attempt closure.
func (c *Connection) do(ctx context.Context, req *Request) ([]byte, error) {
	url := c.BuildAPIURL(req)
	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	// One invocation id per logical call, shared by all attempts.
	invocationID := uuid.NewString()
	policy := resolvePolicy(req.Retry, req)

	ctx, span := c.startSpan(ctx, req, invocationID, policy != nil)
	defer span.End()

	attempt := func() ([]byte, error) {
		return c.perform(ctx, req, url, body, contentType, invocationID)
	}

	execute := func() ([]byte, error) {
		if policy == nil {
			return attempt()
		}
		retries := 0
		notify := func(attemptErr error, next time.Duration) {
			retries++
			recordRetryEvent(span, retries, attemptErr, next)
			c.metrics.recordRetryAttempt(ctx, req.Method)
		}
		out, retryErr := policy.do(ctx, notify, attempt)
		if retryErr != nil && retries > 0 {
			c.metrics.recordRetryExhausted(ctx, req.Method)
		}
		return out, retryErr
	}

	start := time.Now()
	var raw []byte
	if c.coalesceReads && coalescable(req) {
		shared, sharedErr, _ := c.group.Do(coalesceKey(req.Method, url), func() (any, error) {
			return execute()
		})
		err = sharedErr
		if b, ok := shared.([]byte); ok && err == nil {
			// Followers get their own copy so nobody mutates a shared
			// slice.
			raw = append([]byte(nil), b...)
		}
	} else {
		raw, err = execute()
	}

	c.metrics.recordRequest(ctx, req.Method, time.Since(start), err)
	c.metrics.recordBodySize(ctx, req.Method, len(raw))
	finishSpan(span, err)
	return raw, err
}

// perform executes a single attempt: rate-limit gate, header composition,
// HTTP exchange, response classification. Each attempt is independent;
// nothing mutable is carried between retries.
func (c *Connection) perform(
	ctx context.Context,
	req *Request,
	url string,
	body []byte,
	contentType string,
	invocationID string,
) ([]byte, error) {
	if err := c.acquireToken(ctx); err != nil {
		return nil, err
	}

	attemptCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, url, reader)
	if err != nil {
		return nil, err
	}
	httpReq.Header = composeHeaders(
		req.Headers, c.extraHeaders, contentType, c.userAgent, invocationID,
	)

	logRequest(c.logger, httpReq, invocationID)
	start := time.Now()

	roundTrip := func() ([]byte, error) {
		resp, respErr := c.httpClient.Do(httpReq)
		if respErr != nil {
			return nil, respErr
		}
		logResponse(c.logger, resp, time.Since(start))
		return classify(resp, req.Method, url)
	}

	if c.breaker != nil {
		return c.breaker.Execute(roundTrip)
	}
	return roundTrip()
}

// encodeBody serializes the request body. Maps and structs become JSON and
// force the JSON content type; bytes and strings pass through with the
// caller's content type.
func encodeBody(req *Request) ([]byte, string, error) {
	switch data := req.Data.(type) {
	case nil:
		return nil, req.ContentType, nil
	case []byte:
		return data, req.ContentType, nil
	case string:
		return []byte(data), req.ContentType, nil
	default:
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return raw, "application/json", nil
	}
}
