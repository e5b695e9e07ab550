package directus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/florianilch/directus-client/internal/token"
)

// Request describes a single Directus API call.
type Request struct {
	Method string
	URL    string
	// Token is attached as a bearer credential when non-nil.
	Token *token.Token
	Query url.Values
	// Payload is JSON-encoded as the request body when non-nil.
	Payload any
}

// Response is a decoded Directus response envelope.
// Empty (204) responses yield a zero Response.
type Response struct {
	Status int             `json:"-"`
	Data   json.RawMessage `json:"data,omitempty"`
	Meta   json.RawMessage `json:"meta,omitempty"`
}

// DecodeData unmarshals the data member into v.
func (r *Response) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return &ClientError{Op: "decode response", Err: errors.New("response has no data")}
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return &ClientError{Op: "decode response", Err: err}
	}
	return nil
}

// Transport sends Directus API calls.
type Transport interface {
	// Do sends req and blocks until the response is decoded. Returns
	// *ClientError for transport failures and *ResponseError for API errors.
	Do(ctx context.Context, req Request) (*Response, error)
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient sets the underlying HTTP client.
// If not provided, a client with a 30 second timeout is used.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithTimeout bounds each request, including reading the response body.
func WithTimeout(timeout time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		t.timeout = timeout
	}
}

// HTTPTransport is the net/http implementation of Transport.
// Redirects are followed; HTTP error statuses are decoded, not treated as
// transport failures.
type HTTPTransport struct {
	client  *http.Client
	timeout time.Duration
}

// Compile-time check to ensure HTTPTransport implements Transport
var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates an HTTPTransport.
func NewHTTPTransport(opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do implements Transport.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (*Response, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	httpReq, err := newHTTPRequest(ctx, req)
	if err != nil {
		return nil, &ClientError{Op: "build request", Err: err}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &ClientError{Op: req.Method + " " + httpReq.URL.Path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	return decodeResponse(resp)
}

func newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for key, values := range req.Query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if req.Payload != nil {
		data, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling JSON request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Token != nil {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token.Value())
	}

	return httpReq, nil
}

// errorBody is the Directus error envelope.
type errorBody struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeResponse maps an HTTP response onto Response or an error.
// Bodies that are not JSON are transport failures regardless of status.
func decodeResponse(resp *http.Response) (*Response, error) {
	if resp.StatusCode == http.StatusNoContent {
		return &Response{Status: resp.StatusCode}, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ClientError{Op: "read response", Err: err}
	}
	if !json.Valid(data) {
		return nil, &ClientError{Op: "decode response", Err: fmt.Errorf("non-JSON body with status %d", resp.StatusCode)}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var body errorBody
		if err := json.Unmarshal(data, &body); err != nil || body.Error == nil {
			return nil, &ResponseError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, &ResponseError{Status: resp.StatusCode, Code: body.Error.Code, Message: body.Error.Message}
	}

	out := &Response{Status: resp.StatusCode}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, &ClientError{Op: "decode response", Err: err}
	}
	return out, nil
}
