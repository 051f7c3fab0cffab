// Package testutil provides a configurable upstream API for tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a copy of a request seen by the mock.
type RecordedRequest struct {
	Method  string
	Path    string
	Query   url.Values
	Header  http.Header
	Cookies []*http.Cookie
	Body    []byte
}

// MockAPI is a configurable upstream server for testing.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	requests []RecordedRequest
}

// NewMockAPI creates and starts a mock upstream.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.Query(),
			Header:  r.Header.Clone(),
			Cookies: r.Cookies(),
			Body:    body,
		})
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	}))

	return mock
}

// URL returns the server base URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Host returns the server host:port, for request coordinates.
func (m *MockAPI) Host() string {
	u, _ := url.Parse(m.server.URL)
	return u.Host
}

// Close shuts down the server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets a custom handler for a path.
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetOffsetPages serves items in pages of pageSize, selected by the
// offset query parameter param. Items are returned under itemsField.
func (m *MockAPI) SetOffsetPages(path, param, itemsField string, items []any, pageSize int) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		offset, err := strconv.Atoi(r.URL.Query().Get(param))
		if err != nil || offset < 0 {
			http.Error(w, `{"error": "bad offset"}`, http.StatusBadRequest)
			return
		}

		page := []any{}
		if offset < len(items) {
			end := offset + pageSize
			if end > len(items) {
				end = len(items)
			}
			page = items[offset:end]
		}
		writeJSON(w, http.StatusOK, map[string]any{itemsField: page, param: offset})
	})
}

// SetCursorPages serves the given pages in order. Page i is returned for
// cursor "p<i>" (no cursor for the first) and links to "p<i+1>" under
// cursorField, except the last page which carries no cursor.
func (m *MockAPI) SetCursorPages(path, param, itemsField, cursorField string, pages [][]any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		index := 0
		if cursor := r.URL.Query().Get(param); cursor != "" {
			n, err := strconv.Atoi(cursor[1:])
			if err != nil || cursor[0] != 'p' || n >= len(pages) {
				http.Error(w, `{"error": "bad cursor"}`, http.StatusBadRequest)
				return
			}
			index = n
		}

		body := map[string]any{itemsField: pages[index]}
		if index+1 < len(pages) {
			body[cursorField] = "p" + strconv.Itoa(index+1)
		}
		writeJSON(w, http.StatusOK, body)
	})
}

// Requests returns a copy of the recorded requests.
func (m *MockAPI) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or false if none arrived.
func (m *MockAPI) LastRequest() (RecordedRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return RecordedRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// NewJSONResponse creates a response with a JSON content type.
func NewJSONResponse(status int, body string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return NewJSONResponse(http.StatusInternalServerError, `{"error": "Internal server error"}`)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
