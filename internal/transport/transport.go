// Package transport is the HTTP boundary between chain adapters and public
// blockchain nodes. Non-2xx statuses are returned as responses, not errors;
// an error from Do means the request outcome is unknown.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

// Defaults for NewHTTP.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultMaxResponseBytes = 2 << 20
	DefaultUserAgent        = "klingnet-wallet/1"
)

// ErrResponseTooLarge is returned when a body exceeds MaxResponseBytes.
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// Request is one HTTP exchange.
type Request struct {
	Method string
	URL    string
	Header map[string]string
	Body   []byte
	// MaxResponseBytes bounds the body read; 0 uses the transport default.
	MaxResponseBytes int64
}

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Body   []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Doer performs HTTP requests.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(ctx context.Context, req *Request) (*Response, error)

// Do calls f.
func (f DoerFunc) Do(ctx context.Context, req *Request) (*Response, error) { return f(ctx, req) }

// HTTP implements Doer with net/http.
type HTTP struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// NewHTTP returns a transport with the given timeout and default response
// bound. Zero values select the defaults.
func NewHTTP(timeout time.Duration, maxResponseBytes int64) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxResponseBytes <= 0 {
		maxResponseBytes = DefaultMaxResponseBytes
	}
	return &HTTP{
		client:    &http.Client{Timeout: timeout},
		maxBytes:  maxResponseBytes,
		userAgent: DefaultUserAgent,
	}
}

// Do sends req and reads at most the configured number of body bytes.
func (h *HTTP) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", h.userAgent)
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	limit := req.MaxResponseBytes
	if limit <= 0 || limit > h.maxBytes {
		limit = h.maxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, limit)
	}
	return &Response{Status: resp.StatusCode, Body: data}, nil
}

// GetJSON issues a GET accepting JSON.
func GetJSON(ctx context.Context, d Doer, url string, maxBytes int64) (*Response, error) {
	return d.Do(ctx, &Request{
		Method:           http.MethodGet,
		URL:              url,
		Header:           map[string]string{"Accept": "application/json"},
		MaxResponseBytes: maxBytes,
	})
}

// PostJSON issues a POST with a JSON body.
func PostJSON(ctx context.Context, d Doer, url string, body []byte, maxBytes int64) (*Response, error) {
	return d.Do(ctx, &Request{
		Method: http.MethodPost,
		URL:    url,
		Header: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		Body:             body,
		MaxResponseBytes: maxBytes,
	})
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Label   string
	Status  int
	Snippet string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s http status %d: %s", e.Label, e.Status, e.Snippet)
}

// SnippetLen is the default number of body characters kept in errors.
const SnippetLen = 240

// NewStatusError builds a StatusError keeping the first n characters of
// the response body.
func NewStatusError(label string, resp *Response, n int) *StatusError {
	return &StatusError{Label: label, Status: resp.Status, Snippet: Snippet(resp.Body, n)}
}

// Snippet returns at most n characters of body, replacing invalid UTF-8.
func Snippet(body []byte, n int) string {
	out := make([]rune, 0, n)
	for len(body) > 0 && len(out) < n {
		r, size := utf8.DecodeRune(body)
		out = append(out, r)
		body = body[size:]
	}
	return string(out)
}
