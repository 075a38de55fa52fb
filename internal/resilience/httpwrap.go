package resilience

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Doer is the minimal request execution contract satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient wraps an http client with per-attempt timeout, bounded
// exponential retry, and a circuit breaker. Responses with 5xx status are
// treated as failures and retried; 4xx responses are returned as-is.
type HTTPClient struct {
	Base        Doer
	Breaker     *Breaker
	MaxAttempts int
	RetryBase   time.Duration
	JitterPct   float64
	Timeout     time.Duration
	Target      string
	Logger      zerolog.Logger
}

// NewHTTPClient builds a wrapped client with the supplied retry and breaker
// settings. A nil base falls back to http.DefaultClient.
func NewHTTPClient(base Doer, breaker *Breaker, maxAttempts int, retryBase, timeout time.Duration, jitterPct float64) *HTTPClient {
	if base == nil {
		base = http.DefaultClient
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &HTTPClient{
		Base:        base,
		Breaker:     breaker,
		MaxAttempts: maxAttempts,
		RetryBase:   retryBase,
		JitterPct:   jitterPct,
		Timeout:     timeout,
		Logger:      zerolog.Nop(),
	}
}

// Do executes the request with retry and breaker protection. The request body
// must either be nil or replayable; callers should pass GetBody-capable
// requests (http.NewRequestWithContext over bytes.Reader does this).
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	var bodyBytes []byte
	if req.Body != nil && req.GetBody == nil {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		bodyBytes = b
	}

	var lastErr error
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		if c.Breaker != nil && !c.Breaker.Allow(ctx) {
			return nil, ErrOpenCircuit
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if c.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		}

		attemptReq, err := c.cloneRequest(attemptCtx, req, bodyBytes)
		if err != nil {
			if cancel != nil {
				cancel()
			}
			return nil, err
		}

		resp, err := c.Base.Do(attemptReq)
		success := err == nil && resp.StatusCode < http.StatusInternalServerError
		if c.Breaker != nil {
			c.Breaker.Report(ctx, success)
		}
		if success {
			if cancel != nil {
				// tie the body lifetime to the attempt context
				resp.Body = &cancelReadCloser{rc: resp.Body, cancel: cancel}
			}
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = &StatusError{Code: resp.StatusCode}
			io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<14))
			resp.Body.Close()
		}
		if cancel != nil {
			cancel()
		}

		c.Logger.Warn().
			Str("target", c.Target).
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Int("attempt", attempt).
			Err(lastErr).
			Msg("outbound_attempt_failed")

		if attempt == c.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(Backoff(c.RetryBase, attempt, c.JitterPct)):
		}
	}
	return nil, lastErr
}

func (c *HTTPClient) cloneRequest(ctx context.Context, req *http.Request, body []byte) (*http.Request, error) {
	clone := req.Clone(ctx)
	switch {
	case req.GetBody != nil:
		b, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = b
	case body != nil:
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.ContentLength = int64(len(body))
	default:
		clone.Body = nil
	}
	return clone, nil
}

// StatusError reports a non-retryable exhaustion of attempts against an
// upstream returning server errors.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "resilience: upstream returned status " + http.StatusText(e.Code)
}

type cancelReadCloser struct {
	rc     io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Read(p []byte) (int, error) { return c.rc.Read(p) }

func (c *cancelReadCloser) Close() error {
	err := c.rc.Close()
	c.cancel()
	return err
}
