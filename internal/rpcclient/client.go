// Package rpcclient provides a JSON-RPC 2.0 client over a transport.Doer.
// Chain adapters use it for EVM, Solana, NEAR and Sui nodes, and the
// wallet CLI uses it to talk to walletd.
package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/internal/transport"
)

// Client is a JSON-RPC 2.0 client bound to one endpoint.
type Client struct {
	endpoint string
	doer     transport.Doer
	id       interface{}
	label    string
	maxBytes int64
	header   map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithID sets the request id sent with every call.
func WithID(id interface{}) Option { return func(c *Client) { c.id = id } }

// WithLabel sets the prefix used in status errors, e.g. "near rpc".
func WithLabel(label string) Option { return func(c *Client) { c.label = label } }

// WithMaxResponseBytes bounds response bodies.
func WithMaxResponseBytes(n int64) Option { return func(c *Client) { c.maxBytes = n } }

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if c.header == nil {
			c.header = map[string]string{}
		}
		c.header[key] = value
	}
}

// New creates a client targeting endpoint.
func New(endpoint string, doer transport.Doer, opts ...Option) *Client {
	c := &Client{endpoint: endpoint, doer: doer, id: 1, label: "rpc"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the target URL.
func (c *Client) Endpoint() string { return c.endpoint }

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

type response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is returned when the server responds with an error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, transport.Snippet(e.Data, transport.SnippetLen))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrDecode wraps responses that are not valid JSON-RPC.
var ErrDecode = errors.New("decode rpc response")

// Call invokes method and unmarshals the result into result. A nil result
// discards it. Non-2xx statuses become *transport.StatusError, error objects
// *RPCError; transport failures are returned wrapped as is.
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	raw, err := c.CallRaw(ctx, method, params)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%w: result of %s: %v", ErrDecode, method, err)
	}
	return nil
}

// CallRaw invokes method and returns the raw result, which is "null" when
// the server sent a null or missing result.
func (c *Client) CallRaw(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: c.id})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req := &transport.Request{
		Method: "POST",
		URL:    c.endpoint,
		Header: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		Body:             body,
		MaxResponseBytes: c.maxBytes,
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.label, method, err)
	}
	if !resp.OK() {
		// Some nodes send their error object under a non-2xx status.
		var failed response
		if json.Unmarshal(resp.Body, &failed) == nil && failed.Error != nil {
			return nil, failed.Error
		}
		return nil, transport.NewStatusError(c.label, resp, transport.SnippetLen)
	}

	var rpcResp response
	if err := json.Unmarshal(resp.Body, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, method, err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	if len(rpcResp.Result) == 0 {
		return json.RawMessage("null"), nil
	}
	return rpcResp.Result, nil
}

// IsRejection reports whether err is a definite answer from the server:
// an error object or a 4xx status. 5xx statuses usually come from a
// gateway and do not tell whether the node processed the request, so
// they count as transport failures, as do decode errors.
func IsRejection(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return true
	}
	var statusErr *transport.StatusError
	return errors.As(err, &statusErr) && statusErr.Status >= 400 && statusErr.Status < 500
}
