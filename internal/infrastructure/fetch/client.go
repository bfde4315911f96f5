package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"PaperTracker/internal/ports"
)

// Error describes a failed fetch. Retryable errors (HTTP 429, transport
// timeouts and aborts, upstream 5xx) are retried with backoff; everything
// else fails immediately.
type Error struct {
	Status    int
	Retryable bool
	Body      string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch failed with status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("fetch failed: %s", e.Body)
}

// Retryable reports whether err is a fetch error worth retrying.
func Retryable(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Retryable
}

// Config tunes retry, pacing, and breaker behavior.
type Config struct {
	Timeout           time.Duration
	MaxAttempts       int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	PolitenessMin     time.Duration
	PolitenessMax     time.Duration
	RequestsPerSecond float64
	BreakerEnabled    bool
	// MaxBodyBytes caps a response body. A body that exceeds the cap is an
	// error, never a silently truncated success: a cut-off PDF still starts
	// with the magic bytes and would slip past the integrity check.
	MaxBodyBytes int64
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		MaxAttempts:       3,
		BackoffInitial:    500 * time.Millisecond,
		BackoffMax:        8 * time.Second,
		PolitenessMin:     1 * time.Second,
		PolitenessMax:     3 * time.Second,
		RequestsPerSecond: 1,
		MaxBodyBytes:      64 << 20,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()
	if out.Timeout <= 0 {
		out.Timeout = def.Timeout
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = def.MaxAttempts
	}
	if out.BackoffInitial <= 0 {
		out.BackoffInitial = def.BackoffInitial
	}
	if out.BackoffMax < out.BackoffInitial {
		out.BackoffMax = out.BackoffInitial
	}
	if out.PolitenessMax < out.PolitenessMin {
		out.PolitenessMax = out.PolitenessMin
	}
	if out.MaxBodyBytes <= 0 {
		out.MaxBodyBytes = def.MaxBodyBytes
	}
	return out
}

// Client performs HTTP GETs with classified retries, a global outbound rate
// floor, and an optional circuit breaker in front of the retry loop.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

var _ ports.Fetcher = (*Client)(nil)

// New builds a client; a nil httpClient gets a timeout-bounded default.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	cfg = cfg.normalize()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}

	if cfg.BreakerEnabled {
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name: "fetch",
			IsSuccessful: func(err error) bool {
				return err == nil || !Retryable(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			},
		})
	}

	return c
}

// Get retrieves rawURL with query merged in, retrying retryable failures
// with exponential backoff and jitter up to the attempt ceiling.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	target, err := buildURL(rawURL, query)
	if err != nil {
		return nil, err
	}

	if c.breaker == nil {
		return c.getWithRetry(ctx, target)
	}
	return c.breaker.Execute(func() ([]byte, error) {
		return c.getWithRetry(ctx, target)
	})
}

func (c *Client) getWithRetry(ctx context.Context, target string) ([]byte, error) {
	backoff := c.cfg.BackoffInitial
	var last *Error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, ferr := c.do(ctx, target)
		if ferr == nil {
			return body, nil
		}
		last = ferr

		if !ferr.Retryable {
			return nil, ferr
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		wait := jitter(backoff)
		c.logger.Warn("retrying fetch",
			"url", target,
			"attempt", attempt,
			"status", ferr.Status,
			"backoff", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > c.cfg.BackoffMax {
			backoff = c.cfg.BackoffMax
		}
	}

	return nil, fmt.Errorf("retry budget exhausted after %d attempts: %w", c.cfg.MaxAttempts, last)
}

func (c *Client) do(ctx context.Context, target string) ([]byte, *Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &Error{Retryable: false, Body: err.Error()}
	}
	req.Header.Set("User-Agent", "PaperTracker/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport-level timeouts and aborts are retryable.
		return nil, &Error{Retryable: true, Body: err.Error()}
	}
	defer resp.Body.Close()

	// Read one byte past the cap so an oversized body is detectable.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Retryable: true, Body: err.Error()}
	}
	if int64(len(body)) > c.cfg.MaxBodyBytes {
		return nil, &Error{
			Status:    resp.StatusCode,
			Retryable: false,
			Body:      fmt.Sprintf("response body exceeds %d byte limit", c.cfg.MaxBodyBytes),
		}
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	return nil, &Error{
		Status:    resp.StatusCode,
		Retryable: retryableStatus(resp.StatusCode),
		Body:      snippet(body),
	}
}

// Pause sleeps a randomized politeness delay within the configured bounds.
// Inserted between successive outbound calls to avoid upstream rate limits.
func (c *Client) Pause(ctx context.Context) error {
	if c.cfg.PolitenessMax <= 0 {
		return nil
	}
	wait := c.cfg.PolitenessMin
	if span := c.cfg.PolitenessMax - c.cfg.PolitenessMin; span > 0 {
		wait += time.Duration(rand.Int63n(int64(span)))
	}
	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func buildURL(rawURL string, query url.Values) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %s: %w", rawURL, err)
	}
	if len(query) > 0 {
		merged := parsed.Query()
		for key, values := range query {
			for _, v := range values {
				merged.Set(key, v)
			}
		}
		parsed.RawQuery = merged.Encode()
	}
	return parsed.String(), nil
}

func snippet(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}
