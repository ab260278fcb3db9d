package connection

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConnection_APIRequest(t *testing.T) {
	type args struct {
		stubStatus int
		stubBody   string
		req        *Request
	}

	tests := []struct {
		name     string
		args     args
		want     map[string]any
		wantErr  bool
		wantBody string // recorded request body
	}{
		{
			name: "given JSON success body, then it is decoded",
			args: args{
				stubStatus: 200,
				stubBody:   `{"name":"my-bucket","location":"US"}`,
				req:        &Request{Method: "GET", Path: "/b/my-bucket"},
			},
			want: map[string]any{"name": "my-bucket", "location": "US"},
		},
		{
			name: "given empty success body, then an empty non-nil document",
			args: args{
				stubStatus: 204,
				stubBody:   "",
				req:        &Request{Method: "DELETE", Path: "/b/my-bucket"},
			},
			want: map[string]any{},
		},
		{
			name: "given map body, then it is serialized as JSON",
			args: args{
				stubStatus: 200,
				stubBody:   `{}`,
				req: &Request{
					Method: "POST",
					Path:   "/b",
					Data:   map[string]any{"name": "new-bucket"},
				},
			},
			want:     map[string]any{},
			wantBody: `{"name":"new-bucket"}`,
		},
		{
			name: "given non-JSON success body, then decoding fails",
			args: args{
				stubStatus: 200,
				stubBody:   "not json",
				req:        &Request{Method: "GET", Path: "/b/my-bucket"},
			},
			wantErr: true,
		},
		{
			name: "given API error, then it propagates as *APIError",
			args: args{
				stubStatus: 404,
				stubBody:   `{"error":{"message":"Not Found"}}`,
				req:        &Request{Method: "GET", Path: "/b/missing"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockTransport().StubResponse(tt.args.stubStatus, tt.args.stubBody)
			conn := New(WithTransport(mock))
			defer conn.Close()

			got, err := conn.APIRequest(context.Background(), tt.args.req)

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			if tt.wantBody != "" {
				bodies := mock.RequestBodies()
				require.Len(t, bodies, 1)
				assert.JSONEq(t, tt.wantBody, string(bodies[0]))
				assert.Equal(t, "application/json",
					mock.LastRequest().Header.Get("Content-Type"))
			}
		})
	}
}

func TestConnection_JSONRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	conn := New(WithEndpoint(server.URL))
	defer conn.Close()

	in := map[string]any{
		"name":   "my-bucket",
		"labels": map[string]any{"env": "prod"},
	}
	out, err := conn.APIRequest(context.Background(), &Request{
		Method: "POST",
		Path:   "/b",
		Data:   in,
	})

	require.NoError(t, err)
	assert.Equal(t, in, out, "a JSON document survives the encode/echo/decode round trip")
}

func TestConnection_APIRequestRaw(t *testing.T) {
	mock := NewMockTransport().StubResponse(200, "raw media bytes")
	conn := New(WithTransport(mock))
	defer conn.Close()

	got, err := conn.APIRequestRaw(context.Background(), &Request{
		Method:      "GET",
		Path:        "/b/bucket/o/obj",
		QueryParams: map[string]string{"alt": "media"},
	})

	require.NoError(t, err)
	assert.Equal(t, "raw media bytes", string(got))
}

func TestConnection_APIRequestInto(t *testing.T) {
	type bucketAttrs struct {
		Name     string `json:"name"`
		Location string `json:"location"`
	}

	mock := NewMockTransport().StubResponse(200, `{"name":"my-bucket","location":"US"}`)
	conn := New(WithTransport(mock))
	defer conn.Close()

	var attrs bucketAttrs
	err := conn.APIRequestInto(context.Background(), &Request{
		Method: "GET",
		Path:   "/b/my-bucket",
	}, &attrs)

	require.NoError(t, err)
	assert.Equal(t, "my-bucket", attrs.Name)
	assert.Equal(t, "US", attrs.Location)
}

func TestConnection_HeaderComposition(t *testing.T) {
	mock := NewMockTransport().StubResponse(200, `{}`)
	conn := New(
		WithTransport(mock),
		WithUserAgent("my-app/2.0"),
		WithExtraHeaders(map[string]string{"X-Goog-User-Project": "billing-project"}),
	)
	defer conn.Close()

	_, err := conn.APIRequest(context.Background(), &Request{
		Method: "GET",
		Path:   "/b/bucket",
		Headers: map[string]string{
			"X-Goog-User-Project": "per-call-project",
			"If-Match":            "etag-1",
		},
	})
	require.NoError(t, err)

	sent := mock.LastRequest().Header
	assert.Equal(t, "billing-project", sent.Get("X-Goog-User-Project"),
		"connection-level header wins the collision")
	assert.Equal(t, "etag-1", sent.Get("If-Match"))
	assert.Equal(t, "gzip", sent.Get("Accept-Encoding"))
	assert.Equal(t, "my-app/2.0 objstore-go/1.3.0", sent.Get("User-Agent"))

	clientInfo := sent.Get("X-Goog-API-Client")
	assert.True(t, strings.HasPrefix(clientInfo, "my-app/2.0 objstore-go/1.3.0 gccl-invocation-id/"),
		"client-info header carries the invocation id, got %q", clientInfo)
}

func TestConnection_Close(t *testing.T) {
	t.Run("given caller-supplied client, then Close never touches it", func(t *testing.T) {
		mock := NewMockTransport().StubResponse(200, `{}`)
		conn := New(WithHTTPClient(&http.Client{Transport: mock}))

		_, err := conn.APIRequest(context.Background(), &Request{Method: "GET", Path: "/b/x"})
		require.NoError(t, err)
		require.NoError(t, conn.Close())

		assert.Equal(t, 0, mock.IdleClosedCount())
	})

	t.Run("given owned transport, then Close tears down exactly once", func(t *testing.T) {
		mock := NewMockTransport().StubResponse(200, `{}`)
		conn := New(WithTransport(mock))

		_, err := conn.APIRequest(context.Background(), &Request{Method: "GET", Path: "/b/x"})
		require.NoError(t, err)
		require.NoError(t, conn.Close())
		require.NoError(t, conn.Close())

		assert.Equal(t, 1, mock.IdleClosedCount())
	})
}

func TestConnection_RetryBehavior(t *testing.T) {
	t.Run("given transient failures then success, then all attempts share one invocation id", func(t *testing.T) {
		mock := NewMockTransport().
			StubSequence(502, "Bad Gateway").
			StubSequence(500, `{"error":{"message":"boom","errors":[{"reason":"backendError"}]}}`).
			StubSequence(200, `{"done":true}`)
		conn := New(WithTransport(mock))
		defer conn.Close()

		got, err := conn.APIRequest(context.Background(), &Request{
			Method: "GET",
			Path:   "/b/bucket",
			Retry:  fastRetry(),
		})

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"done": true}, got)
		require.Equal(t, 3, mock.RequestCount())

		var ids []string
		for _, req := range mock.Requests() {
			header := req.Header.Get("X-Goog-API-Client")
			_, id, found := strings.Cut(header, "gccl-invocation-id/")
			require.True(t, found, "missing invocation id in %q", header)
			ids = append(ids, id)
		}
		assert.Equal(t, ids[0], ids[1])
		assert.Equal(t, ids[0], ids[2])
	})

	t.Run("given separate logical calls, then invocation ids differ", func(t *testing.T) {
		mock := NewMockTransport().StubResponse(200, `{}`)
		conn := New(WithTransport(mock))
		defer conn.Close()

		for range 2 {
			_, err := conn.APIRequest(context.Background(), &Request{Method: "GET", Path: "/b/x"})
			require.NoError(t, err)
		}

		reqs := mock.Requests()
		require.Len(t, reqs, 2)
		assert.NotEqual(t,
			reqs[0].Header.Get("X-Goog-API-Client"),
			reqs[1].Header.Get("X-Goog-API-Client"))
	})

	t.Run("given permanent error, then no retry happens", func(t *testing.T) {
		mock := NewMockTransport().StubResponse(404, `{"error":{"message":"Not Found"}}`)
		conn := New(WithTransport(mock))
		defer conn.Close()

		_, err := conn.APIRequest(context.Background(), &Request{
			Method: "GET",
			Path:   "/b/missing",
			Retry:  fastRetry(),
		})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 404, apiErr.Code)
		assert.Equal(t, 1, mock.RequestCount())
	})

	t.Run("given unmet conditional predicate, then exactly one attempt", func(t *testing.T) {
		mock := NewMockTransport().StubResponse(502, "Bad Gateway")
		conn := New(WithTransport(mock))
		defer conn.Close()

		_, err := conn.APIRequest(context.Background(), &Request{
			Method: "DELETE",
			Path:   "/b/bucket/o/obj",
			Retry: &ConditionalRetry{
				Policy:    fastRetry(),
				Predicate: GenerationSpecified,
			},
		})

		require.Error(t, err)
		assert.Equal(t, 1, mock.RequestCount(),
			"a retryable status must not be retried when the predicate is unmet")
	})

	t.Run("given met conditional predicate, then retries proceed", func(t *testing.T) {
		mock := NewMockTransport().
			StubSequence(502, "Bad Gateway").
			StubSequence(204, "")
		conn := New(WithTransport(mock))
		defer conn.Close()

		_, err := conn.APIRequest(context.Background(), &Request{
			Method:      "DELETE",
			Path:        "/b/bucket/o/obj",
			QueryParams: map[string]string{"ifGenerationMatch": "123"},
			Retry: &ConditionalRetry{
				Policy:    fastRetry(),
				Predicate: GenerationSpecified,
			},
		})

		require.NoError(t, err)
		assert.Equal(t, 2, mock.RequestCount())
	})
}

func TestConnection_RequestCoalescing(t *testing.T) {
	const callers = 5

	release := make(chan struct{})
	mock := NewMockTransport().
		StubResponse(200, `{"name":"bucket"}`).
		OnRequest(func(*http.Request) { <-release })
	conn := New(WithTransport(mock), WithRequestCoalescing())
	defer conn.Close()

	var wg sync.WaitGroup
	results := make([]map[string]any, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = conn.APIRequest(context.Background(), &Request{
				Method: "GET",
				Path:   "/b/bucket",
			})
		}()
	}

	// Let every goroutine reach the in-flight call before the upstream
	// responds.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, mock.RequestCount(), "concurrent identical reads share one upstream call")
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, map[string]any{"name": "bucket"}, results[i])
	}
}

func TestConnection_RateLimitFailFast(t *testing.T) {
	mock := NewMockTransport().StubResponse(200, `{}`)
	conn := New(
		WithTransport(mock),
		WithRateLimit(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, WaitOnLimit: false}),
	)
	defer conn.Close()

	_, err := conn.APIRequest(context.Background(), &Request{Method: "GET", Path: "/b/x"})
	require.NoError(t, err)

	_, err = conn.APIRequest(context.Background(), &Request{Method: "GET", Path: "/b/x"})
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, mock.RequestCount())
}

func TestConnection_CircuitBreaker(t *testing.T) {
	mock := NewMockTransport().StubResponse(500, `{"error":{"message":"boom"}}`)
	conn := New(
		WithTransport(mock),
		WithCircuitBreaker(BreakerConfig{
			MaxRequests:         1,
			Timeout:             time.Minute,
			ConsecutiveFailures: 2,
		}),
	)
	defer conn.Close()

	for range 2 {
		_, err := conn.APIRequest(context.Background(), &Request{Method: "GET", Path: "/b/x"})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
	}

	_, err := conn.APIRequest(context.Background(), &Request{Method: "GET", Path: "/b/x"})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, mock.RequestCount(), "open breaker short-circuits before the transport")
}

func TestConnection_Tracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	mock := NewMockTransport().
		StubSequence(502, "Bad Gateway").
		StubSequence(200, `{}`)
	conn := New(WithTransport(mock), WithTracerProvider(tp))
	defer conn.Close()

	_, err := conn.APIRequest(context.Background(), &Request{
		Method: "GET",
		Path:   "/b/bucket",
		Retry:  fastRetry(),
	})
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1, "one span per logical call, attempts included")
	span := spans[0]
	assert.Equal(t, "Connection.APIRequest GET", span.Name)

	var retryEvents int
	for _, ev := range span.Events {
		if ev.Name == "api.retry" {
			retryEvents++
		}
	}
	assert.Equal(t, 1, retryEvents)
}

func TestConnection_SetUserAgent(t *testing.T) {
	conn := New()
	defer conn.Close()

	assert.Equal(t, "objstore-go/1.3.0", conn.UserAgent())

	conn.SetUserAgent("replacement/9.9")
	assert.Equal(t, "replacement/9.9 objstore-go/1.3.0", conn.UserAgent())
}
