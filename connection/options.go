package connection

import (
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/arcus-cloud/objstore-go/connection"

	// DefaultEndpoint is the production JSON API endpoint.
	DefaultEndpoint = "https://storage.googleapis.com"

	// DefaultAPIVersion is the JSON API version used in request URLs.
	DefaultAPIVersion = "v1"
)

// Config holds the HTTP transport tuning for an internally built client.
// Use DefaultConfig() and adjust fields as needed. Ignored when the caller
// supplies its own *http.Client via WithHTTPClient.
type Config struct {
	// Timeout bounds the entire request lifecycle, body read included.
	// Storage responses can be large, so the default is generous.
	// Default: 60s
	Timeout time.Duration

	// Connection pool settings. Metadata traffic is small and bursty;
	// the defaults favor connection reuse against a single endpoint.
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	// TLSHandshakeTimeout is the maximum time to wait for a TLS
	// handshake. Default: 10s
	TLSHandshakeTimeout time.Duration

	// DialTimeout and KeepAlive configure the TCP dialer.
	DialTimeout time.Duration
	KeepAlive   time.Duration

	// WriteBufferSize and ReadBufferSize size per-connection buffers.
	// Larger buffers help media downloads. Default: 64KB each.
	WriteBufferSize int
	ReadBufferSize  int

	// DisableCompression disables the transport's own gzip handling.
	// This stays true: the connection sets Accept-Encoding itself and
	// inflates response bodies explicitly.
	DisableCompression bool
}

// DefaultConfig returns transport settings balanced for API metadata calls
// mixed with occasional media downloads.
func DefaultConfig() Config {
	return Config{
		Timeout:             60 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 50,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialTimeout:         5 * time.Second,
		KeepAlive:           30 * time.Second,
		WriteBufferSize:     64 * 1024,
		ReadBufferSize:      64 * 1024,
		DisableCompression:  true,
	}
}

// internalConfig collects everything New needs before assembling a
// Connection.
type internalConfig struct {
	httpConfig Config

	// Endpoint configuration.
	BaseURL    string
	APIVersion string

	// Client identification.
	ClientInfo ClientInfo

	// ExtraHeaders are applied on top of per-call headers for every
	// request issued through the connection.
	ExtraHeaders map[string]string

	// HTTPClient, when set, is the caller-supplied session. The
	// connection never closes it.
	HTTPClient *http.Client

	// Transport, when set, becomes the base RoundTripper of an
	// internally built (and owned) client.
	Transport http.RoundTripper

	// Observability.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Logger         zerolog.Logger

	// Optional resilience layers.
	RateLimit     *RateLimitConfig
	CoalesceReads bool
	Breaker       *BreakerConfig
}

func newInternalConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:     DefaultConfig(),
		BaseURL:        DefaultEndpoint,
		APIVersion:     DefaultAPIVersion,
		ClientInfo:     defaultClientInfo(),
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
		Logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// buildHTTPClient assembles the owned HTTP client from the transport
// tuning.
func (cfg *internalConfig) buildHTTPClient() *http.Client {
	base := cfg.Transport
	if base == nil {
		hc := cfg.httpConfig
		dialer := &net.Dialer{
			Timeout:   hc.DialTimeout,
			KeepAlive: hc.KeepAlive,
		}
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			MaxIdleConns:        hc.MaxIdleConns,
			MaxIdleConnsPerHost: hc.MaxIdleConnsPerHost,
			MaxConnsPerHost:     hc.MaxConnsPerHost,
			IdleConnTimeout:     hc.IdleConnTimeout,
			TLSHandshakeTimeout: hc.TLSHandshakeTimeout,
			WriteBufferSize:     hc.WriteBufferSize,
			ReadBufferSize:      hc.ReadBufferSize,
			DisableCompression:  hc.DisableCompression,
		}
	}
	return &http.Client{
		Transport: base,
		Timeout:   cfg.httpConfig.Timeout,
	}
}

// Option configures a Connection.
type Option func(*internalConfig)

// WithEndpoint overrides the API endpoint for all calls.
func WithEndpoint(endpoint string) Option {
	return func(cfg *internalConfig) {
		cfg.BaseURL = endpoint
	}
}

// WithAPIVersion overrides the API version segment in request URLs.
func WithAPIVersion(version string) Option {
	return func(cfg *internalConfig) {
		cfg.APIVersion = version
	}
}

// WithConfig sets the HTTP transport tuning for the internally built
// client.
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithUserAgent prepends a caller fragment to the User-Agent header.
func WithUserAgent(fragment string) Option {
	return func(cfg *internalConfig) {
		cfg.ClientInfo.UserAgent = fragment
	}
}

// WithExtraHeaders sets headers applied to every request. They are layered
// on top of per-call headers and win on key collision.
func WithExtraHeaders(headers map[string]string) Option {
	return func(cfg *internalConfig) {
		cfg.ExtraHeaders = headers
	}
}

// WithHTTPClient supplies the HTTP session to use. The caller retains
// ownership: Close never touches a supplied client. Credentials are
// expected to be injected by this client's transport.
func WithHTTPClient(client *http.Client) Option {
	return func(cfg *internalConfig) {
		cfg.HTTPClient = client
	}
}

// WithTransport sets the base RoundTripper of the internally built client.
// Unlike WithHTTPClient, the resulting session is owned by the connection
// and torn down by Close.
func WithTransport(rt http.RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.Transport = rt
	}
}

// WithTracerProvider overrides the global otel tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider overrides the global otel meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithDebugLogger enables request/response debug logging on the given
// logger. Logging is off by default.
func WithDebugLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Logger = logger
	}
}

// WithRateLimit enables client-side rate limiting; every attempt (retries
// included) consumes a token.
func WithRateLimit(rl RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimit = &rl
	}
}

// WithRequestCoalescing collapses concurrent identical GET metadata reads
// into a single upstream call.
func WithRequestCoalescing() Option {
	return func(cfg *internalConfig) {
		cfg.CoalesceReads = true
	}
}

// WithCircuitBreaker wraps every attempt in a circuit breaker. While the
// breaker is open, attempts fail fast without reaching the transport.
func WithCircuitBreaker(bc BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.Breaker = &bc
	}
}
