package connection

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
)

// MockTransport is a configurable http.RoundTripper for tests. It records
// every request it sees, serves stubbed responses, and counts
// CloseIdleConnections calls so ownership semantics can be asserted.
type MockTransport struct {
	mu          sync.Mutex
	queue       []stubbedResult
	defaultResp func() *http.Response
	defaultErr  error
	matchers    []stubMatcher
	requests    []*http.Request
	bodies      [][]byte
	requestHook func(*http.Request)

	idleClosed atomic.Int32
}

type stubbedResult struct {
	response func() *http.Response
	err      error
}

type stubMatcher struct {
	match    func(*http.Request) bool
	response func() *http.Response
}

// NewMockTransport creates an empty MockTransport. With no stubs configured
// every round trip fails, which keeps missing expectations loud.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func makeResponse(statusCode int, body string, headers map[string]string) func() *http.Response {
	return func() *http.Response {
		h := make(http.Header)
		for k, v := range headers {
			h.Set(k, v)
		}
		return &http.Response{
			StatusCode:    statusCode,
			Status:        http.StatusText(statusCode),
			Body:          io.NopCloser(bytes.NewBufferString(body)),
			Header:        h,
			ContentLength: int64(len(body)),
		}
	}
}

// StubResponse serves the given status and body for every request that no
// other stub claims.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	return m.StubResponseWithHeaders(statusCode, body, nil)
}

// StubResponseWithHeaders is StubResponse plus response headers, for
// content-encoding and pagination tests.
func (m *MockTransport) StubResponseWithHeaders(
	statusCode int,
	body string,
	headers map[string]string,
) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResp = makeResponse(statusCode, body, headers)
	return m
}

// StubError makes every unmatched round trip return err. Useful for
// simulating transport-level failures.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultErr = err
	return m
}

// StubFunc serves the given response for requests the predicate matches.
// Matchers are consulted in registration order before the sequence queue
// and the default stub.
func (m *MockTransport) StubFunc(
	match func(*http.Request) bool,
	statusCode int,
	body string,
) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchers = append(m.matchers, stubMatcher{
		match:    match,
		response: makeResponse(statusCode, body, nil),
	})
	return m
}

// StubPath serves the given response for requests whose URL path matches
// exactly.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.URL.Path == path
	}, statusCode, body)
}

// StubSequence enqueues a one-shot response consumed in FIFO order. Chain
// several to script fail-then-succeed retry scenarios.
func (m *MockTransport) StubSequence(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, stubbedResult{response: makeResponse(statusCode, body, nil)})
	return m
}

// StubSequenceError enqueues a one-shot transport error.
func (m *MockTransport) StubSequenceError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, stubbedResult{err: err})
	return m
}

// OnRequest registers a hook invoked for every request, outside the lock.
func (m *MockTransport) OnRequest(fn func(*http.Request)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestHook = fn
	return m
}

// RoundTrip implements http.RoundTripper. Matchers win over the sequence
// queue, which wins over the default stub.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, reqBody)
	hook := m.requestHook

	var result stubbedResult
	found := false
	for _, s := range m.matchers {
		if s.match(req) {
			result = stubbedResult{response: s.response}
			found = true
			break
		}
	}
	if !found && len(m.queue) > 0 {
		result = m.queue[0]
		m.queue = m.queue[1:]
		found = true
	}
	if !found {
		if m.defaultErr != nil {
			result = stubbedResult{err: m.defaultErr}
			found = true
		} else if m.defaultResp != nil {
			result = stubbedResult{response: m.defaultResp}
			found = true
		}
	}
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	if !found {
		return nil, errors.New("no stub for request: " + req.Method + " " + req.URL.String())
	}
	if result.err != nil {
		return nil, result.err
	}
	resp := result.response()
	resp.Request = req
	return resp, nil
}

// CloseIdleConnections counts close calls; http.Client.CloseIdleConnections
// forwards here, so the counter reflects whether Close tore the client down.
func (m *MockTransport) CloseIdleConnections() {
	m.idleClosed.Add(1)
}

// IdleClosedCount returns how many times CloseIdleConnections ran.
func (m *MockTransport) IdleClosedCount() int {
	return int(m.idleClosed.Load())
}

// Requests returns a copy of every recorded request.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request{}, m.requests...)
}

// RequestBodies returns the recorded request bodies, index-aligned with
// Requests.
func (m *MockTransport) RequestBodies() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.bodies))
	copy(out, m.bodies)
	return out
}

// RequestCount returns the number of round trips performed.
func (m *MockTransport) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil if none were made.
func (m *MockTransport) LastRequest() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Reset clears stubs and recorded requests. The idle-close counter is kept.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.bodies = nil
	m.queue = nil
	m.matchers = nil
	m.defaultResp = nil
	m.defaultErr = nil
	m.requestHook = nil
}
