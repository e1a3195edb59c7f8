package particle

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

// Transport constants.
const (
	// connectTimeout bounds TCP/TLS connection establishment, separately
	// from the overall request timeout.
	connectTimeout = 3 * time.Second

	// maxResponseBytes bounds how much of a response body is read. Cloud
	// API envelopes are small; anything larger is discarded.
	maxResponseBytes = 64 << 10
)

// Request describes one blocking HTTP exchange with the cloud API.
type Request struct {
	Method string
	URL    string
	Header map[string]string
	Body   string
}

// Response is the outcome of a completed exchange.
type Response struct {
	StatusCode int
	Body       string
}

// RemoteClient performs one blocking request/response exchange.
//
// Implementations report connection failures and timeouts through the error
// return; status-code interpretation is the caller's concern. The interface
// exists so dispatcher tests can substitute a scripted fake.
type RemoteClient interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// HTTPClient is the production RemoteClient backed by net/http.
//
// Thread Safety: safe for concurrent use; the underlying http.Client pools
// connections across workers.
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPClient creates an HTTP client whose exchanges are bounded by the
// given per-call timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &HTTPClient{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: connectTimeout,
			},
		},
		timeout: timeout,
	}
}

// Invoke performs one blocking exchange.
//
// The per-call timeout applies to the whole exchange (connect, write, read).
// Callers distinguish the retryable timeout class with IsTimeout.
func (c *HTTPClient) Invoke(ctx context.Context, req Request) (Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, req.URL, bodyReader)
	if err != nil {
		return Response{}, err
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // Read side fully consumed below

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, err
	}

	return Response{StatusCode: resp.StatusCode, Body: string(body)}, nil
}

// IsTimeout reports whether err is the retryable read-timeout transport
// class. Connection refusals, DNS failures, and other transport errors are
// deliberately excluded - retrying those wastes the actuator's time without
// improving the odds.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
