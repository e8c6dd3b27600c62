package proxyfetch

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"
)

// MockTransport provides a configurable http.RoundTripper for testing
// fetchers without real network I/O. Inject it through WithTransportFactory.
//
// It allows stubbing responses, errors and artificial latency, and records
// every request for verification.
type MockTransport struct {
	mu          sync.RWMutex
	stubs       []mockStub
	defaultResp *http.Response
	defaultErr  error
	delay       time.Duration
	requests    []*http.Request
	requestHook func(*http.Request)
}

type mockStub struct {
	matcher  func(*http.Request) bool
	response *http.Response
	err      error
}

// NewMockTransport creates a new MockTransport for testing.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// StubResponse stubs all requests to return the given response.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResp = newMockResponse(statusCode, body, nil)
	return m
}

// StubResponseWithHeader stubs all requests to return the given response
// with the given headers. Use this to control Content-Type or Location.
func (m *MockTransport) StubResponseWithHeader(
	statusCode int,
	body string,
	header http.Header,
) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResp = newMockResponse(statusCode, body, header)
	return m
}

// StubError stubs all requests to return the given error.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultErr = err
	return m
}

// StubFunc stubs requests matching the predicate to return the given
// response. Stubs are checked in order; first match wins.
func (m *MockTransport) StubFunc(
	matcher func(*http.Request) bool,
	statusCode int,
	body string,
) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, mockStub{
		matcher:  matcher,
		response: newMockResponse(statusCode, body, nil),
	})
	return m
}

// StubFuncError stubs requests matching the predicate to return the given error.
func (m *MockTransport) StubFuncError(matcher func(*http.Request) bool, err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, mockStub{matcher: matcher, err: err})
	return m
}

// StubRedirect stubs requests matching the predicate to return a 302
// pointing at location. Useful for exercising redirect and origin checks.
func (m *MockTransport) StubRedirect(
	matcher func(*http.Request) bool,
	location string,
) *MockTransport {
	header := make(http.Header)
	header.Set("Location", location)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, mockStub{
		matcher:  matcher,
		response: newMockResponse(http.StatusFound, "", header),
	})
	return m
}

// Delay makes every round trip wait the given duration before responding.
// The wait honors request context cancellation, so racing attempts can be
// cut short the way real network calls are.
func (m *MockTransport) Delay(d time.Duration) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// OnRequest sets a hook that is called for each request.
// Useful for assertions or capturing request details.
func (m *MockTransport) OnRequest(fn func(*http.Request)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestHook = fn
	return m
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	hook := m.requestHook
	delay := m.delay
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.stubs {
		if s.matcher(req) {
			if s.err != nil {
				return nil, s.err
			}
			resp := cloneMockResponse(s.response)
			resp.Request = req
			return resp, nil
		}
	}

	if m.defaultErr != nil {
		return nil, m.defaultErr
	}
	if m.defaultResp != nil {
		resp := cloneMockResponse(m.defaultResp)
		resp.Request = req
		return resp, nil
	}

	return nil, errors.New("no stub found for request: " + req.Method + " " + req.URL.String())
}

// Requests returns all requests made through this transport.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*http.Request{}, m.requests...)
}

// RequestCount returns the number of requests made.
func (m *MockTransport) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil if none.
func (m *MockTransport) LastRequest() *http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Reset clears all recorded requests and stubs.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.stubs = nil
	m.defaultResp = nil
	m.defaultErr = nil
	m.delay = 0
	m.requestHook = nil
}

func newMockResponse(statusCode int, body string, header http.Header) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     header,
	}
}

func cloneMockResponse(resp *http.Response) *http.Response {
	if resp == nil {
		return nil
	}

	var bodyBytes []byte
	if resp.Body != nil {
		bodyBytes, _ = io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}

	return &http.Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header.Clone(),
		Body:       io.NopCloser(bytes.NewBuffer(bodyBytes)),
	}
}
