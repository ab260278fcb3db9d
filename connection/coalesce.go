package connection

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// coalesceKey builds the deduplication key for a GET metadata read. The
// fully-built URL already carries every query parameter in canonical order,
// so method+URL identifies the read completely.
func coalesceKey(method, url string) string {
	sum := sha256.Sum256([]byte(method + "|" + url))
	return hex.EncodeToString(sum[:])
}

// coalescable reports whether a call may share its result with concurrent
// identical calls. Only bodyless GETs qualify.
func coalescable(req *Request) bool {
	return req.Method == http.MethodGet && req.Data == nil
}
