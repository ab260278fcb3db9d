// Package connection implements the request-dispatch substrate used by the
// objstore resource packages to talk to the storage service's JSON API.
//
// A Connection owns the HTTP client, the API endpoint configuration, and a
// set of headers applied to every call. All resource operations funnel
// through a single entry point:
//
//	conn := connection.New(
//	    connection.WithUserAgent("my-app/2.1"),
//	)
//	defer conn.Close()
//	payload, err := conn.APIRequest(ctx, &connection.Request{
//	    Method: http.MethodGet,
//	    Path:   "/b/my-bucket",
//	    Retry:  connection.DefaultRetry(),
//	})
//
// Each call builds the target URL, serializes the body, composes headers,
// performs the HTTP exchange, and classifies the response. Non-2xx
// responses surface as *APIError with the decoded error envelope; 2xx
// responses come back as a decoded JSON document or raw bytes.
//
// Retry behavior is opt-in per call. A *Retry re-invokes the attempt under
// exponential backoff; a *ConditionalRetry first inspects the request and
// installs its inner policy only when the request is safe to repeat (for
// example when a generation precondition makes a mutation idempotent).
//
// Every logical call is traced with OpenTelemetry and tagged with a unique
// invocation id shared by all of its retry attempts.
package connection
