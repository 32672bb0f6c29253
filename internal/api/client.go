// File: internal/api/client.go
// Description: HTTP client for the verification service's status and upload
// endpoints. Requests travel through the browser-bound transport so they share
// cookies with the page; this layer adds bounded retry with jittered
// exponential backoff and outbound pacing.

package api

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/veriform/veriform-cli/api/schemas"
	"github.com/veriform/veriform-cli/internal/config"
	"github.com/veriform/veriform-cli/internal/pacing"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// retryableStatuses are the HTTP statuses worth a second attempt.
var retryableStatuses = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Client issues the two outbound call types: status fetch and binary upload.
type Client struct {
	transport schemas.Transport
	logger    *zap.Logger
	limiter   *rate.Limiter

	requestTimeout   time.Duration
	maxRetries       int
	backoffCap       time.Duration
	uploadAttempts   int
	uploadBackoffCap time.Duration

	mu             sync.Mutex
	acceptLanguage string
	rng            *rand.Rand

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client over the given transport.
func NewClient(cfg config.APIConfig, transport schemas.Transport, logger *zap.Logger) *Client {
	interval := cfg.MinRequestInterval
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Client{
		transport:        transport,
		logger:           logger.Named("api"),
		limiter:          rate.NewLimiter(limit, 1),
		requestTimeout:   cfg.RequestTimeout,
		maxRetries:       cfg.MaxRetries,
		backoffCap:       cfg.BackoffCap,
		uploadAttempts:   cfg.UploadAttempts,
		uploadBackoffCap: cfg.UploadBackoffCap,
		acceptLanguage:   cfg.AcceptLanguage,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:            pacing.SleepFor,
	}
}

// AcceptLanguage returns the current outbound Accept-Language header value.
func (c *Client) AcceptLanguage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acceptLanguage
}

// SetAcceptLanguage updates the outbound Accept-Language header for all
// subsequent calls.
func (c *Client) SetAcceptLanguage(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acceptLanguage = v
}

// backoff computes the delay before retry attempt i (0-indexed):
// exponential with full jitter, capped.
func (c *Client) backoff(i int) time.Duration {
	c.mu.Lock()
	jitter := c.rng.Float64()
	c.mu.Unlock()
	secs := math.Exp2(float64(i)) + jitter
	d := time.Duration(secs * float64(time.Second))
	if d > c.backoffCap {
		return c.backoffCap
	}
	return d
}

// uploadBackoff grows 0.5 * 2^attempt seconds, capped.
func (c *Client) uploadBackoff(attempt int) time.Duration {
	d := time.Duration(0.5 * math.Exp2(float64(attempt)) * float64(time.Second))
	if d > c.uploadBackoffCap {
		return c.uploadBackoffCap
	}
	return d
}

func (c *Client) headers(contentType string) map[string]string {
	h := map[string]string{
		"Accept":          "application/json",
		"Accept-Language": c.AcceptLanguage(),
	}
	if contentType != "" {
		h["Content-Type"] = contentType
	}
	return h
}

// Request issues one JSON call with bounded retry. It retries only on a
// retryable status or a transport failure. When retries are exhausted, the
// last transport error is returned if the final attempt failed; otherwise the
// last (payload, status) pair is returned even for an error status, and the
// caller inspects it.
func (c *Client) Request(ctx context.Context, method, url string, body []byte) (schemas.StatusPayload, int, error) {
	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, &schemas.TransportError{Op: method + " " + url, Err: err}
		}

		reqCtx := ctx
		var cancel context.CancelFunc
		if c.requestTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		}
		contentType := ""
		if len(body) > 0 {
			contentType = "application/json"
		}
		resp, err := c.transport.Fetch(reqCtx, method, url, c.headers(contentType), body)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			lastErr = &schemas.TransportError{Op: method + " " + url, Err: err}
			if i < c.maxRetries {
				d := c.backoff(i)
				c.logger.Warn("Request failed, backing off",
					zap.String("method", method), zap.Int("attempt", i), zap.Duration("backoff", d), zap.Error(err))
				if serr := c.sleep(ctx, d); serr != nil {
					return nil, 0, lastErr
				}
				continue
			}
			return nil, 0, lastErr
		}

		var payload schemas.StatusPayload
		if len(resp.Body) > 0 {
			if derr := json.Unmarshal(resp.Body, &payload); derr != nil {
				c.logger.Debug("Response body is not JSON", zap.Int("status", resp.Status))
				payload = nil
			}
		}

		if retryableStatuses[resp.Status] && i < c.maxRetries {
			d := c.backoff(i)
			c.logger.Warn("Retryable status, backing off",
				zap.Int("status", resp.Status), zap.Int("attempt", i), zap.Duration("backoff", d))
			if serr := c.sleep(ctx, d); serr != nil {
				return payload, resp.Status, nil
			}
			continue
		}
		return payload, resp.Status, nil
	}
	// Unreachable: the loop always returns.
	return nil, 0, lastErr
}

// UploadBinary pushes raw bytes to an upload URL. Returns true only on a 2xx
// response; false after exhausting attempts. Never returns an error.
func (c *Client) UploadBinary(ctx context.Context, url string, data []byte, contentType string) bool {
	for attempt := 0; attempt < c.uploadAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.uploadBackoff(attempt)); err != nil {
				return false
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return false
		}

		reqCtx := ctx
		var cancel context.CancelFunc
		if c.requestTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		}
		resp, err := c.transport.Fetch(reqCtx, "PUT", url, c.headers(contentType), data)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			c.logger.Warn("Upload attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if resp.Status >= 200 && resp.Status < 300 {
			return true
		}
		c.logger.Warn("Upload rejected", zap.Int("attempt", attempt), zap.Int("status", resp.Status))
	}
	return false
}

// localeHeader builds the ratcheted Accept-Language value for a server locale.
func localeHeader(locale string) string {
	lang := locale
	if idx := strings.IndexByte(locale, '-'); idx > 0 {
		lang = locale[:idx]
	}
	return locale + "," + lang + ";q=0.9,en-US;q=0.8,en;q=0.7"
}
