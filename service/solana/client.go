package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/brojonat/mintledger/service/metrics"
	"golang.org/x/time/rate"
)

// RetryPolicy controls how failed requests are retried.
// The delay before retry n (1-based) is BaseDelay*2^(n-1), capped at MaxDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries five times, starting at one second and never
// waiting longer than fifteen seconds between attempts. A per-attempt HTTP
// timeout counts as a network error and is retried, so a node that never
// answers holds a call for up to six timeouts plus backoff before it fails
// with a TransportError. Bound the whole call with the context when that is
// too long.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   15 * time.Second,
	}
}

func (p RetryPolicy) delay(retry int) time.Duration {
	d := p.BaseDelay << uint(retry-1)
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

// retryableStatus lists the HTTP statuses that are worth another attempt.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:        true,
	http.StatusRequestEntityTooLarge: true,
	http.StatusTooManyRequests:       true,
	http.StatusInternalServerError:   true,
	http.StatusBadGateway:            true,
	http.StatusServiceUnavailable:    true,
	http.StatusGatewayTimeout:        true,
}

// Client speaks JSON-RPC 2.0 to a Solana node. Every request goes out as a
// POST, single or batched, with retries on transient failures.
type Client struct {
	httpClient *http.Client
	rpcURL     string
	endpoint   string // label for metrics, never the URL (it may carry an API key)
	requestID  atomic.Int64
	limiter    *rate.Limiter
	retry      RetryPolicy
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithRateLimit caps outgoing HTTP requests per second. Zero disables it.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
		}
	}
}

// WithHTTPClient replaces the default client (30s per-attempt timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records per-call metrics under the given endpoint label
// (e.g. "mainnet" or the RPC host).
func WithMetrics(m *metrics.Metrics, endpoint string) Option {
	return func(c *Client) {
		c.metrics = m
		c.endpoint = endpoint
	}
}

// NewClient creates a client for the node at rpcURL.
// For keyed endpoints include the key in the URL, e.g.
// https://mainnet.helius-rpc.com/?api-key=YOUR-KEY
func NewClient(rpcURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		rpcURL:     rpcURL,
		endpoint:   "default",
		retry:      DefaultRetryPolicy(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call performs a single JSON-RPC request and decodes its result into out.
// A null result leaves out untouched. out may be nil.
func (c *Client) Call(ctx context.Context, method string, params []any, out any) error {
	req := Request{
		JSONRPC: "2.0",
		ID:      int(c.requestID.Add(1)),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	respBody, err := c.post(ctx, method, body)
	c.recordCall(method, err, start)
	if err != nil {
		return err
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// BatchRequest is one entry of a batched call.
type BatchRequest struct {
	Method string
	Params []any
}

// BatchResult is a successful entry of a batched call. ID is the index of
// the originating BatchRequest.
type BatchResult struct {
	ID     int
	Result json.RawMessage
}

// BatchCall sends all requests as one JSON array. Responses are correlated
// by id, entries that came back as errors are dropped, and the survivors are
// returned in ascending id order. A result shorter than the input is normal.
// Entries whose id matches no request, or repeats one already seen, are
// dropped too, so every returned ID indexes reqs.
func (c *Client) BatchCall(ctx context.Context, reqs []BatchRequest) ([]BatchResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	method := reqs[0].Method

	batch := make([]Request, len(reqs))
	for i, r := range reqs {
		batch[i] = Request{JSONRPC: "2.0", ID: i, Method: r.Method, Params: r.Params}
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	start := time.Now()
	respBody, err := c.post(ctx, method, body)
	c.recordCall("batch:"+method, err, start)
	if err != nil {
		return nil, err
	}

	var responses []Response
	if err := json.Unmarshal(respBody, &responses); err != nil {
		// some nodes answer a malformed batch with a single error object
		var single Response
		if json.Unmarshal(respBody, &single) == nil && single.Error != nil {
			return nil, single.Error
		}
		return nil, fmt.Errorf("unmarshal batch response: %w", err)
	}

	results := make([]BatchResult, 0, len(responses))
	seen := make([]bool, len(reqs))
	dropped := 0
	for _, resp := range responses {
		if resp.ID < 0 || resp.ID >= len(reqs) || seen[resp.ID] {
			dropped++
			c.logger.WarnContext(ctx, "dropping batch entry with unknown or repeated id",
				"method", method,
				"id", resp.ID,
			)
			continue
		}
		seen[resp.ID] = true
		if resp.Error != nil {
			dropped++
			c.logger.DebugContext(ctx, "dropping errored batch entry",
				"method", method,
				"id", resp.ID,
				"error", resp.Error,
			)
			continue
		}
		results = append(results, BatchResult{ID: resp.ID, Result: resp.Result})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	if c.metrics != nil && dropped > 0 {
		c.metrics.RecordBatchEntriesDropped(method, dropped)
	}
	return results, nil
}

// post sends body and returns the raw response body of the first successful
// attempt. Network errors and retryable statuses are retried per the policy.
func (c *Client) post(ctx context.Context, method string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retry.delay(attempt)
			c.logger.WarnContext(ctx, "retrying rpc request",
				"method", method,
				"attempt", attempt+1,
				"backoff_seconds", backoff.Seconds(),
				"error", lastErr,
			)
			if err := sleep(ctx, backoff); err != nil {
				return nil, &TransportError{Method: method, Attempts: attempt, Err: err}
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &TransportError{Method: method, Attempts: attempt, Err: err}
			}
		}

		respBody, status, err := c.do(ctx, body)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, &TransportError{Method: method, Attempts: attempt + 1, Err: err}
			}
			lastErr = err
			c.recordRetry(method, "network")
		case status == http.StatusOK:
			return respBody, nil
		case retryableStatus[status]:
			lastErr = &StatusError{Code: status, Body: string(respBody)}
			if status == http.StatusTooManyRequests {
				c.recordRetry(method, "rate_limit")
				if c.metrics != nil {
					c.metrics.RecordRateLimitHit(c.endpoint)
				}
			} else {
				c.recordRetry(method, "status")
			}
		default:
			return nil, &StatusError{Code: status, Body: string(respBody)}
		}
	}
	return nil, &TransportError{Method: method, Attempts: c.retry.MaxRetries + 1, Err: lastErr}
}

func (c *Client) do(ctx context.Context, body []byte) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

func (c *Client) recordCall(method string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

func (c *Client) recordRetry(method, reason string) {
	if c.metrics != nil {
		c.metrics.RecordRPCRetry(method, reason)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
