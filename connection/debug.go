package connection

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

func logRequest(logger zerolog.Logger, req *http.Request, invocationID string) {
	logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("invocation_id", invocationID).
		Msg("API request")
}

func logResponse(logger zerolog.Logger, resp *http.Response, duration time.Duration) {
	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration_ms", duration).
		Int64("content_length", resp.ContentLength).
		Msg("API response")
}
