// Package client holds the outbound HTTP plumbing shared by every upstream
// integration: per-upstream metrics, correlation headers, status mapping and retries.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kjstillabower/weather-moment-nft/internal/observability"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrRejected        = errors.New("request rejected")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
)

// maxErrorBody bounds how much of an error response is echoed into the error message.
const maxErrorBody = 512

// RetryPolicy bounds retries of idempotent calls.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy is three attempts with exponential backoff from 200ms capped at 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// Upstream is an instrumented HTTP client for one named external service.
type Upstream struct {
	name      string
	client    *http.Client
	retry     RetryPolicy
	userAgent string
}

// NewUpstream returns an Upstream whose requests time out after timeout.
// name labels metrics (e.g. "open_meteo", "replicate").
func NewUpstream(name string, timeout time.Duration, retry RetryPolicy) *Upstream {
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	return &Upstream{
		name:  name,
		retry: retry,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithUserAgent sets the User-Agent sent on every request.
func (u *Upstream) WithUserAgent(ua string) *Upstream {
	u.userAgent = ua
	return u
}

// Name returns the metrics label of the upstream.
func (u *Upstream) Name() string { return u.name }

// Do sends one request and returns the response only for 2xx statuses.
// Non-2xx responses are closed and mapped to a sentinel error.
func (u *Upstream) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	req = req.WithContext(ctx)
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	if u.userAgent != "" {
		req.Header.Set("User-Agent", u.userAgent)
	}

	resp, err := u.client.Do(req)
	observability.UpstreamDuration.WithLabelValues(u.name).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(u.name, string(CategorizeError(err))).Inc()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%s: request timeout: %w", u.name, err)
		}
		return nil, fmt.Errorf("%s: http request failed: %w", u.name, err)
	}
	observability.UpstreamCallsTotal.WithLabelValues(u.name, StatusLabel(resp.StatusCode)).Inc()

	if err := HandleErrorResponse(resp); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", u.name, err)
	}
	return resp, nil
}

// GetJSON issues a GET with retries and decodes the JSON body into out.
func (u *Upstream) GetJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	return Retry(ctx, u.retry, func() error {
		req, err := http.NewRequest(http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("%s: create request: %w", u.name, err)
		}
		copyHeader(req.Header, header)
		req.Header.Set("Accept", "application/json")
		return u.doJSON(ctx, req, out)
	})
}

// SendJSON issues a single non-idempotent request with a JSON body and decodes the JSON response.
// It is not retried.
func (u *Upstream) SendJSON(ctx context.Context, method, rawURL string, header http.Header, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", u.name, err)
	}
	req, err := http.NewRequest(method, rawURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", u.name, err)
	}
	copyHeader(req.Header, header)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return u.doJSON(ctx, req, out)
}

// Download fetches rawURL with retries, returning at most maxBytes of body and the Content-Type.
func (u *Upstream) Download(ctx context.Context, rawURL string, maxBytes int64) ([]byte, string, error) {
	var (
		data        []byte
		contentType string
	)
	err := Retry(ctx, u.retry, func() error {
		req, err := http.NewRequest(http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("%s: create request: %w", u.name, err)
		}
		resp, err := u.Do(ctx, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err = io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
		if err != nil {
			return fmt.Errorf("%s: read body: %w", u.name, err)
		}
		if int64(len(data)) > maxBytes {
			return fmt.Errorf("%w: %s: body exceeds %d bytes", ErrRejected, u.name, maxBytes)
		}
		contentType = resp.Header.Get("Content-Type")
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

func (u *Upstream) doJSON(ctx context.Context, req *http.Request, out any) error {
	resp, err := u.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: parse response: %w", u.name, err)
	}
	return nil
}

// Retry runs op until it succeeds, returns a non-retryable error, or the policy is exhausted.
// Delays grow exponentially from BaseDelay to MaxDelay with 10% jitter.
func Retry(ctx context.Context, p RetryPolicy, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.MaxInterval = p.MaxDelay
	bo.RandomizationFactor = 0.1
	bo.MaxElapsedTime = 0

	retries := p.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// IsRetryable reports whether err is transient: rate limiting, 5xx, or a per-attempt timeout.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// HandleErrorResponse maps a non-2xx response to a sentinel error carrying a body excerpt.
func HandleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	excerpt := readExcerpt(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d%s", ErrUnauthorized, resp.StatusCode, excerpt)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: HTTP %d%s", ErrNotFound, resp.StatusCode, excerpt)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d%s", ErrRateLimited, resp.StatusCode, excerpt)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d%s", ErrUpstreamFailure, resp.StatusCode, excerpt)
	}
	return fmt.Errorf("%w: HTTP %d%s", ErrRejected, resp.StatusCode, excerpt)
}

func readExcerpt(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	s := strings.TrimSpace(string(b))
	if s == "" {
		return ""
	}
	return ": " + s
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// StatusLabel buckets an HTTP status for metrics.
func StatusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
