package connection

import (
	"fmt"
)

// APIError is returned for any non-2xx response. It always carries the
// HTTP status code, the method and URL of the offending request, and the
// decoded error payload (or a synthetic one when the server returned
// something that is not valid JSON).
type APIError struct {
	// Code is the HTTP status code.
	Code int

	// Method and URL identify the request that failed.
	Method string
	URL    string

	// Message is the server-provided error message, or the raw body text
	// when the body was not a structured error envelope.
	Message string

	// Reasons collects the "reason" field of each entry in the error
	// envelope's errors list (e.g. "backendError", "rateLimitExceeded").
	// Empty for unstructured errors.
	Reasons []string

	// Payload is the decoded error document. For non-JSON bodies it is a
	// synthetic envelope of the form {"error": {"message": <text>}}.
	Payload map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, e.Message)
}

// HasReason reports whether the error envelope names the given reason.
func (e *APIError) HasReason(reason string) bool {
	for _, r := range e.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

// newAPIError builds an APIError from a decoded (or synthetic) payload.
func newAPIError(code int, method, url string, payload map[string]any) *APIError {
	apiErr := &APIError{
		Code:    code,
		Method:  method,
		URL:     url,
		Payload: payload,
	}

	errObj, _ := payload["error"].(map[string]any)
	if errObj != nil {
		if msg, ok := errObj["message"].(string); ok {
			apiErr.Message = msg
		}
		if items, ok := errObj["errors"].([]any); ok {
			for _, item := range items {
				entry, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if reason, ok := entry["reason"].(string); ok {
					apiErr.Reasons = append(apiErr.Reasons, reason)
				}
			}
		}
	}
	return apiErr
}
