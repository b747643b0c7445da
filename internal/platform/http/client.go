package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Client is a wrapper for HTTP client with rate limiting
type Client struct {
	HTTPClient *http.Client
	Limiter    *rate.Limiter

	maxProbeTime time.Duration
	logger       zerolog.Logger
}

// ClientOptions holds options for creating a new Client
// MaxProbeTime bounds WaitReady only; submissions are never retried.
type ClientOptions struct {
	Timeout        time.Duration
	RequestsPerSec int
	MaxProbeTime   time.Duration
	Component      string
}

// NewClient creates a new HTTP client with rate limiting
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 5
	}
	if opts.MaxProbeTime == 0 {
		opts.MaxProbeTime = 30 * time.Second
	}
	if opts.Component == "" {
		opts.Component = "http_client"
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout: opts.Timeout,
		},
		Limiter:      rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.RequestsPerSec),
		maxProbeTime: opts.MaxProbeTime,
		logger:       log.With().Str("component", opts.Component).Logger(),
	}
}

// DoRequest performs exactly one HTTP request after waiting for the rate limiter.
// A status outside 200-299 is returned as *HTTPStatusError with the body closed.
func (c *Client) DoRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		// Wait fails early when the next token lies past the deadline
		if _, ok := ctx.Deadline(); ok && !errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("rate limiter: %w: %v", context.DeadlineExceeded, err)
		}
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// WaitReady polls url with exponential backoff until it answers 2xx,
// MaxProbeTime passes or ctx is done.
func (c *Client) WaitReady(ctx context.Context, url string) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating probe request: %w", err))
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &HTTPStatusError{StatusCode: resp.StatusCode}
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		c.logger.Warn().Err(err).Dur("retry_in", next).Str("url", url).Msg("Upstream not ready")
	}

	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.MaxElapsedTime = c.maxProbeTime

	if err := backoff.RetryNotify(operation, backoff.WithContext(backoffStrategy, ctx), notify); err != nil {
		return fmt.Errorf("upstream %s not ready: %w", url, err)
	}
	return nil
}

// HTTPStatusError represents an error due to a non-2xx HTTP status code
type HTTPStatusError struct {
	StatusCode int
}

// Error implements the error interface
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("non-2xx status code: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// StatusCode extracts the status of an *HTTPStatusError anywhere in err's chain
func StatusCode(err error) (int, bool) {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, true
	}
	return 0, false
}
