// Package httputil holds the HTTP plumbing shared by the server handlers and
// the command-line client: JSON responses, response decoding and a mockable
// client.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/trail.report/internal/version"
)

// DefaultTimeout bounds a whole client request, including reading the body.
const DefaultTimeout = 30 * time.Second

// HTTPClient sends requests. *StandardClient and *MockHTTPClient implement it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient sends requests over the network, tagging each one with a
// trail User-Agent.
type StandardClient struct {
	client    *http.Client
	userAgent string
}

// NewStandardClient wraps c. A nil c gets a client with DefaultTimeout.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = &http.Client{Timeout: DefaultTimeout}
	}
	return &StandardClient{client: c, userAgent: "trail/" + version.Version}
}

func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.client.Do(req)
}

// MockResponse is one canned reply. A non-nil Err fails the request instead.
type MockResponse struct {
	StatusCode int
	Body       string
	Header     http.Header
	Err        error
}

// MockHTTPClient records requests and replays queued responses in order.
// Once the queue is drained it answers 200 with an empty body, or
// DefaultError when set.
type MockHTTPClient struct {
	DefaultError error

	mu        sync.Mutex
	requests  []*http.Request
	responses []MockResponse
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a reply with a JSON content type.
func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return m.Queue(MockResponse{StatusCode: status, Body: body, Header: h})
}

// AddError queues a transport failure.
func (m *MockHTTPClient) AddError(err error) *MockHTTPClient {
	return m.Queue(MockResponse{Err: err})
}

func (m *MockHTTPClient) Queue(r MockResponse) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, r)
	return m
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	next := MockResponse{StatusCode: http.StatusOK, Err: m.DefaultError}
	if len(m.responses) > 0 {
		next, m.responses = m.responses[0], m.responses[1:]
	}
	if next.Err != nil {
		return nil, next.Err
	}
	header := next.Header
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode: next.StatusCode,
		Status:     http.StatusText(next.StatusCode),
		Header:     header,
		Body:       io.NopCloser(bytes.NewBufferString(next.Body)),
		Request:    req,
	}, nil
}

// GetRequest returns the nth recorded request, or nil.
func (m *MockHTTPClient) GetRequest(n int) *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.requests) {
		return nil
	}
	return m.requests[n]
}

func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
