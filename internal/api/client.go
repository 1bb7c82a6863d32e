// Package api is the single entry point for backend calls. Every request goes
// through the deadline executor, optionally through the retry coordinator,
// and every failure is handed to the failure reporter before it is returned.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/client-go/util/flowcontrol"

	"github.com/aravindh-murugesan/paperscout-go/internal/failure"
	"github.com/aravindh-murugesan/paperscout-go/internal/metrics"
	"github.com/aravindh-murugesan/paperscout-go/internal/transport"
)

// Options configures a Client.
type Options struct {
	// BaseURL is prefixed to every endpoint, e.g. http://localhost:8080/api.
	BaseURL string
	// Timeout is the per-attempt deadline.
	Timeout time.Duration
	Retry   transport.RetryPolicy
	// HTTPClient defaults to a plain *http.Client.
	HTTPClient transport.Doer
	// Limiter throttles outbound attempts when set.
	Limiter   flowcontrol.RateLimiter
	Reporter  *failure.Reporter
	Metrics   *metrics.Metrics
	UserAgent string
	Logger    *slog.Logger
}

// Client issues backend calls.
type Client struct {
	base      string
	exec      *transport.Executor
	timeout   time.Duration
	retry     transport.RetryPolicy
	limiter   flowcontrol.RateLimiter
	reporter  *failure.Reporter
	metrics   *metrics.Metrics
	userAgent string
	logger    *slog.Logger
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = transport.DefaultTimeout
	}
	if opts.Retry.MaxAttempts == 0 && opts.Retry.Delay == 0 {
		opts.Retry = transport.DefaultRetryPolicy()
	}
	if opts.Reporter == nil {
		opts.Reporter = failure.New()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = failure.ClientSignature("")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		base:      strings.TrimRight(opts.BaseURL, "/"),
		exec:      transport.NewExecutor(opts.HTTPClient),
		timeout:   opts.Timeout,
		retry:     opts.Retry,
		limiter:   opts.Limiter,
		reporter:  opts.Reporter,
		metrics:   opts.Metrics,
		userAgent: opts.UserAgent,
		logger:    opts.Logger.With("component", "api"),
	}, nil
}

// Reporter returns the failure reporter this client feeds.
func (c *Client) Reporter() *failure.Reporter {
	return c.reporter
}

// RequestOptions describes one backend call.
type RequestOptions struct {
	// Method defaults to GET.
	Method string
	Query  url.Values
	// Body is JSON-encoded when non-nil.
	Body   any
	Header http.Header
	// FailureMessage replaces an empty backend message on a rejected envelope.
	FailureMessage string
}

// Request performs a call against endpoint and returns the raw response
// body. With useRetry, timeouts, connection failures and 5xx replies are
// retried under the client's policy. Any non-2xx reply is a failure, and
// every failure is recorded by the reporter before it is returned.
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions, useRetry bool) ([]byte, error) {
	start := time.Now()
	op, source := splitEndpoint(endpoint, opts.Query)

	data, err := c.request(ctx, op, source, opts, useRetry)
	if err != nil {
		c.metrics.RecordRequest(op, outcome(ctx, err), time.Since(start))
		return nil, c.report(ctx, err, source)
	}
	c.metrics.RecordRequest(op, "ok", time.Since(start))
	return data, nil
}

func (c *Client) request(ctx context.Context, op, source string, opts RequestOptions, useRetry bool) ([]byte, error) {
	var payload []byte
	if opts.Body != nil {
		b, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, &transport.Error{Kind: transport.KindValidation, Op: op, Message: "encode request body", Err: err}
		}
		payload = b
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	target := c.base + source
	requestID := uuid.NewString()

	attempt := func(ctx context.Context) (*http.Response, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return nil, &transport.Error{Kind: transport.KindValidation, Op: op, Message: "build request", Err: err}
		}
		for k, vs := range opts.Header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-Id", requestID)
		resp, err := c.exec.Do(ctx, req, c.timeout)
		if err != nil {
			return nil, err
		}
		return buffered(resp)
	}

	var (
		resp *http.Response
		err  error
	)
	if useRetry {
		policy := c.retry
		onRetry := policy.OnRetry
		policy.OnRetry = func(n int, cause error) {
			c.metrics.RecordRetry(op)
			if onRetry != nil {
				onRetry(n, cause)
			}
		}
		resp, err = transport.Retry(ctx, policy, op, attempt)
	} else {
		resp, err = attempt(ctx)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, transport.StatusError(op, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transport.Error{Kind: transport.KindTransport, Op: op, Message: "read response body", Err: err}
	}
	c.logger.Debug("Request completed", "method", method, "endpoint", op, "status", resp.StatusCode, "request_id", requestID)
	return data, nil
}

// buffered reads the body while the attempt deadline is still armed, so a
// stalled body fails the attempt with a timeout the retry loop can absorb.
// Error bodies are read up to 4KiB only.
func buffered(resp *http.Response) (*http.Response, error) {
	defer resp.Body.Close()
	var r io.Reader = resp.Body
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r = io.LimitReader(resp.Body, 4<<10)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

// report routes err to the failure reporter. The caller cancelling or running
// out its own deadline is not a failure of the backend and is returned
// unrecorded.
func (c *Client) report(ctx context.Context, err error, source string) error {
	if callerGaveUp(ctx, err) {
		return err
	}
	if transport.IsConnectivity(err) {
		return c.reporter.HandleNetworkError(ctx, err, source)
	}
	return c.reporter.HandleAPIError(ctx, err, source, transport.StatusOf(err))
}

func callerGaveUp(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func outcome(ctx context.Context, err error) string {
	if callerGaveUp(ctx, err) {
		return "cancelled"
	}
	if k := transport.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

// splitEndpoint returns the path used as the failure operation and the full
// endpoint, query included, used as the log source.
func splitEndpoint(endpoint string, query url.Values) (op, source string) {
	op, _, _ = strings.Cut(endpoint, "?")
	source = endpoint
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		source += sep + query.Encode()
	}
	return op, source
}
