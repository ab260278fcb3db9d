package connection

import (
	"net/http"
	"strings"
)

const (
	libraryName    = "objstore-go"
	libraryVersion = "1.3.0"

	// clientInfoHeader identifies the client library (and, per call, the
	// invocation id) to the API frontend.
	clientInfoHeader = "X-Goog-API-Client"
)

// ClientInfo identifies the library to the server. It is computed once at
// Connection construction time and never mutated afterwards; SetUserAgent
// replaces the whole value.
type ClientInfo struct {
	// LibraryName and LibraryVersion identify this library.
	LibraryName    string
	LibraryVersion string

	// UserAgent is an optional caller-supplied fragment prepended to the
	// library identifier.
	UserAgent string
}

func defaultClientInfo() ClientInfo {
	return ClientInfo{
		LibraryName:    libraryName,
		LibraryVersion: libraryVersion,
	}
}

// agent returns the composed User-Agent value.
func (ci ClientInfo) agent() string {
	lib := ci.LibraryName + "/" + ci.LibraryVersion
	if ci.UserAgent == "" {
		return lib
	}
	return strings.TrimSpace(ci.UserAgent) + " " + lib
}

// composeHeaders merges the header layers for a single attempt.
//
// Per-call headers are copied first, then the connection's extra headers
// are applied on top: on key collision the connection-level value wins,
// giving callers a connection-wide override layer. Accept-Encoding and the
// client identification headers are always set. The invocation id is
// appended to the client-info header only; the User-Agent stays stable
// across the process lifetime so server-side aggregation keys on it.
func composeHeaders(
	perCall map[string]string,
	extra map[string]string,
	contentType string,
	userAgent string,
	invocationID string,
) http.Header {
	h := make(http.Header, len(perCall)+len(extra)+4)
	for k, v := range perCall {
		h.Set(k, v)
	}
	for k, v := range extra {
		h.Set(k, v)
	}

	h.Set("Accept-Encoding", "gzip")

	if contentType != "" {
		h.Set("Content-Type", contentType)
	}

	if invocationID != "" {
		h.Set(clientInfoHeader, userAgent+" gccl-invocation-id/"+invocationID)
	} else {
		h.Set(clientInfoHeader, userAgent)
	}
	h.Set("User-Agent", userAgent)

	return h
}
