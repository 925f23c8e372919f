package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 5 * time.Minute
	// DefaultRetries is how many times a failed request is retried.
	DefaultRetries = 3
	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "feedupdate/1.0"
)

// HTTP fetches the feed from FeedURL and payloads relative to BaseURL.
type HTTP struct {
	FeedURL   string
	BaseURL   string
	client    *http.Client
	userAgent string
	retries   int
	delay     time.Duration
}

// HTTPOption configures an HTTP source.
type HTTPOption func(*HTTP)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithRetries sets the retry count and the first backoff delay, which doubles
// on every further attempt.
func WithRetries(retries int, delay time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.retries = retries
		h.delay = delay
	}
}

// NewHTTP returns a source for feedURL. When baseURL is empty, payload paths
// resolve against the feed's own location.
func NewHTTP(feedURL, baseURL string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		FeedURL: feedURL,
		BaseURL: baseURL,
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: DefaultUserAgent,
		retries:   DefaultRetries,
		delay:     time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTP) FetchFeed(ctx context.Context) (string, error) {
	var text string
	err := h.retry(ctx, func() error {
		resp, err := h.get(ctx, h.FeedURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read feed: %w", err)
		}
		text = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (h *HTTP) FetchFile(ctx context.Context, remotePath, localPath string, progress ProgressFunc) error {
	target, err := h.resolve(remotePath)
	if err != nil {
		return err
	}
	return h.retry(ctx, func() error {
		resp, err := h.get(ctx, target)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return writeFile(ctx, localPath, resp.Body, resp.ContentLength, progress)
	})
}

func (h *HTTP) resolve(remotePath string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(remotePath))
	if err != nil {
		return "", fmt.Errorf("parse remote path: %w", err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}

	baseStr := h.BaseURL
	if baseStr == "" {
		baseStr = h.FeedURL
	}
	base, err := url.Parse(baseStr)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if h.BaseURL != "" && !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(ref).String(), nil
}

// statusError is a non-200 response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

// retryable reports whether another attempt may succeed. Client errors other
// than timeouts and rate limiting will not.
func (e *statusError) retryable() bool {
	switch {
	case e.code == http.StatusRequestTimeout, e.code == http.StatusTooManyRequests:
		return true
	case e.code >= 400 && e.code < 500:
		return false
	}
	return true
}

func (h *HTTP) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		serr := &statusError{code: resp.StatusCode}
		if !serr.retryable() {
			return nil, backoff.Permanent(serr)
		}
		return nil, serr
	}
	return resp, nil
}

func (h *HTTP) retry(ctx context.Context, attemptFn func() error) error {
	var policy backoff.BackOff = &backoff.ZeroBackOff{}
	if h.delay > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = h.delay
		exp.Multiplier = 2
		exp.RandomizationFactor = 0
		policy = exp
	}
	tries := uint(max(h.retries, 0)) + 1

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, attemptFn()
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(tries))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("request failed: %w", err)
}
