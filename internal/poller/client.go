package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	maxResponseBodySize = 1 << 20 // 1MB
	userAgent           = "cadence-monitor"
)

// pool limits keep many targets on few hosts from exhausting sockets
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Response is a completed HTTP exchange with a [Target].
type Response struct {
	// Body is truncated to 1MB.
	Body       []byte
	StatusCode int
	Latency    time.Duration
}

// FetchError is returned by [Client.Fetch] when no complete response was
// read. StatusCode is set if headers arrived before the failure.
type FetchError struct {
	StatusCode int
	Latency    time.Duration
	Err        error
}

// Error returns the message of the underlying failure.
func (e *FetchError) Error() string { return e.Err.Error() }
// Unwrap returns the underlying failure, so errors.Is sees
// context.DeadlineExceeded for a timed-out request.
func (e *FetchError) Unwrap() error { return e.Err }

// Client sends poll requests. Timeouts are per request, taken from the
// target, so one client serves targets with different deadlines.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a polling [Client].
//
// The transport pools connections so that polling many targets does not
// exhaust sockets. Timeouts are applied per request from [Target.Timeout]
// in [Client.Fetch], not as a global client timeout.
//
// Connection pooling configuration:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Fetch requests t and reads at most 1MB of the body. Any failure, including
// the target's timeout elapsing, is returned as a *[FetchError].
func (c *Client) Fetch(ctx context.Context, t Target) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	fail := func(code int, format string, err error) (Response, error) {
		return Response{}, &FetchError{
			StatusCode: code,
			Latency:    time.Since(start),
			Err:        fmt.Errorf(format, err),
		}
	}

	method := t.method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, t.url, nil)
	if err != nil {
		return fail(0, "failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(0, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fail(resp.StatusCode, "failed to read response body: %w", err)
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}, nil
}

// Close drops idle pooled connections. The client stays usable.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
