package connection

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

// classify consumes a completed response and turns it into either the raw
// success body or an *APIError.
//
// Success is any status in [200, 300). Error bodies are decoded as JSON;
// bodies that are not valid JSON (or not valid UTF-8) are normalized into
// a synthetic {"error": {"message": <text>}} payload so callers always get
// a structured error to inspect. Undecodable bytes are replaced rather
// than dropped.
func classify(resp *http.Response, method, url string) ([]byte, error) {
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	payload := map[string]any{}
	if len(body) > 0 {
		payload = decodeErrorEnvelope(body)
	}
	return nil, newAPIError(resp.StatusCode, method, url, payload)
}

// readBody drains and closes the response body, transparently inflating
// gzip content. We always send Accept-Encoding ourselves, which disables
// the transport's automatic decompression.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}

func decodeErrorEnvelope(body []byte) map[string]any {
	if utf8.Valid(body) {
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err == nil && payload != nil {
			return payload
		}
	}
	return map[string]any{
		"error": map[string]any{
			"message": strings.ToValidUTF8(string(body), "�"),
		},
	}
}

// retryableReasons are the error-envelope reasons the service documents as
// transient.
var retryableReasons = map[string]bool{
	"rateLimitExceeded": true,
	"backendError":      true,
	"internalError":     true,
	"badGateway":        true,
}

// unstructured API errors (no reasons list) worth retrying anyway.
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway:
		return true
	}
	return false
}

// shouldRetry is the default retry predicate: transient API errors and
// transient network errors are retryable, everything else is permanent.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if len(apiErr.Reasons) == 0 {
			return isRetryableStatus(apiErr.Code)
		}
		for _, reason := range apiErr.Reasons {
			if retryableReasons[reason] {
				return true
			}
		}
		return false
	}

	return isTransientNetworkError(err)
}

// isTransientNetworkError reports whether a transport-level failure is
// likely to succeed on retry.
func isTransientNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		// NXDOMAIN and friends are permanent.
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	// Wrapped errors from third-party transports may defeat the type
	// checks above.
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"server closed",
		"network is down",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
