package gdrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
)

// Retry and backoff constants.
const (
	maxRetries       = 5
	baseBackoff      = 1 * time.Second
	throttleBackoff  = 10 * time.Second
	maxBackoff       = 60 * time.Second
	backoffFactor    = 2.0
	jitterFraction   = 0.25
	defaultUserAgent = "gdrive-go/0.1"
)

// TokenSource provides OAuth2 bearer tokens. Credentials is the real
// implementation; tests use static tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is an HTTP client for the Drive v3 API.
// It handles request construction, authentication, retry with
// exponential backoff, rate-limit cooldowns, and error classification.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string
	limiter    *rate.Limiter

	// onThrottle is called with the end of each rate-limit cooldown so it
	// can be persisted. May be nil.
	onThrottle func(until time.Time)

	mu            sync.Mutex
	cooldownUntil time.Time

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// NewClient creates a Drive API client.
// baseURL is typically DefaultAPIURL.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		userAgent:  defaultUserAgent,
		sleepFunc:  timeSleep,
		now:        time.Now,
	}
}

// SetUserAgent overrides the User-Agent header. Empty keeps the default.
func (c *Client) SetUserAgent(ua string) {
	if ua != "" {
		c.userAgent = ua
	}
}

// SetRateLimit paces requests to at most rps per second. Zero disables pacing.
func (c *Client) SetRateLimit(rps float64) {
	if rps <= 0 {
		c.limiter = nil
		return
	}

	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

// OnThrottle registers a callback invoked with the end of every rate-limit
// cooldown the client starts.
func (c *Client) OnThrottle(fn func(until time.Time)) {
	c.onThrottle = fn
}

// SetCooldown makes the next request wait until t. Used to honor a cooldown
// recorded by an earlier process.
func (c *Client) SetCooldown(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.After(c.cooldownUntil) {
		c.cooldownUntil = t
	}
}

// Do executes an HTTP request against the Drive API.
// Paths starting with "/" are appended to the client's base URL; absolute
// URLs (upload endpoints) are used as-is. The Content-Type defaults to
// application/json; header entries override it. The body is replayed on
// every retry. The caller is responsible for closing the response body on
// success.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error) {
	url := c.resolveURL(path)

	if err := c.waitCooldown(ctx); err != nil {
		return nil, fmt.Errorf("gdrive: request canceled: %w", err)
	}

	var attempt, throttled int
	for {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("gdrive: request canceled: %w", err)
			}
		}

		resp, err := c.doOnce(ctx, method, url, body, header)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("gdrive: request canceled: %w", ctx.Err())
			}

			// Token refresh has its own retry budget.
			if errors.Is(err, ErrAuth) {
				return nil, err
			}

			// Network errors are retryable.
			if attempt < maxRetries {
				backoff := c.calcBackoff(baseBackoff, attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("gdrive: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("%w: %s %s failed after %d retries: %w", ErrTransport, method, path, maxRetries, err)
		}

		// 2xx: success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		driveErr := newDriveError(resp)

		if isThrottled(resp.StatusCode, driveErr.Reason) {
			if throttled >= maxRetries {
				c.logger.Error("rate limit retries exhausted",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempts", throttled+1),
				)

				driveErr.Err = ErrRateLimited

				return nil, driveErr
			}

			wait := c.throttleWait(resp, throttled)
			c.startCooldown(wait)
			c.logger.Warn("rate limited, backing off",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", throttled+1),
				slog.Duration("backoff", wait),
			)

			if err := c.sleepFunc(ctx, wait); err != nil {
				return nil, fmt.Errorf("gdrive: request canceled: %w", err)
			}

			throttled++

			continue
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.calcBackoff(baseBackoff, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("gdrive: request canceled: %w", err)
			}

			attempt++

			continue
		}

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, driveErr
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	for k, vs := range header {
		req.Header.Del(k)

		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	return c.httpClient.Do(req)
}

// resolveURL joins API-relative paths to the base URL.
func (c *Client) resolveURL(path string) string {
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return path
	}

	return c.baseURL + path
}

// newDriveError reads and closes an error response, extracting the provider's
// message and reason when the body is a Drive error document.
func newDriveError(resp *http.Response) *DriveError {
	defer resp.Body.Close()

	driveErr := &DriveError{
		StatusCode: resp.StatusCode,
		Err:        classifyStatus(resp.StatusCode),
	}

	apiErr := googleapi.CheckResponse(resp)

	gerr, ok := apiErr.(*googleapi.Error)
	if !ok {
		return driveErr
	}

	driveErr.Message = gerr.Message
	if driveErr.Message == "" {
		driveErr.Message = gerr.Body
	}

	if len(gerr.Errors) > 0 {
		driveErr.Reason = gerr.Errors[0].Reason
	}

	return driveErr
}

// throttleWait returns the wait before retrying a throttled request.
// A Retry-After header wins over the backoff schedule.
func (c *Client) throttleWait(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return c.calcBackoff(throttleBackoff, attempt)
}

// startCooldown records that requests should pause for wait.
func (c *Client) startCooldown(wait time.Duration) {
	until := c.now().Add(wait)

	c.mu.Lock()
	if until.After(c.cooldownUntil) {
		c.cooldownUntil = until
	}
	c.mu.Unlock()

	if c.onThrottle != nil {
		c.onThrottle(until)
	}
}

// waitCooldown blocks until any recorded cooldown has passed.
func (c *Client) waitCooldown(ctx context.Context) error {
	c.mu.Lock()
	remaining := c.cooldownUntil.Sub(c.now())
	c.mu.Unlock()

	if remaining <= 0 {
		return nil
	}

	c.logger.Info("waiting for rate-limit cooldown", slog.Duration("remaining", remaining))

	return c.sleepFunc(ctx, remaining)
}

// calcBackoff computes exponential backoff from base with ±25% jitter.
func (c *Client) calcBackoff(base time.Duration, attempt int) time.Duration {
	backoff := float64(base) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
