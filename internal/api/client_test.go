// File: internal/api/client_test.go
package api

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/api/schemas"
	"github.com/veriform/veriform-cli/internal/config"
)

// scriptedTransport replays a fixed sequence of responses/errors and records
// every request it saw.
type scriptedTransport struct {
	responses []*schemas.Response
	errs      []error
	calls     []string
	headers   []map[string]string
	idx       int
}

func (s *scriptedTransport) Fetch(ctx context.Context, method, url string, headers map[string]string, body []byte) (*schemas.Response, error) {
	s.calls = append(s.calls, method+" "+url)
	s.headers = append(s.headers, headers)
	i := s.idx
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.idx++
	if s.errs != nil && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.responses[i], nil
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		RequestTimeout:   time.Second,
		MaxRetries:       1,
		BackoffCap:       30 * time.Second,
		UploadAttempts:   2,
		UploadBackoffCap: 10 * time.Second,
		AcceptLanguage:   "en-US,en;q=0.9",
	}
}

func newTestClient(t *testing.T, tr schemas.Transport, cfg config.APIConfig) *Client {
	t.Helper()
	c := NewClient(cfg, tr, zap.NewNop())
	// No real sleeping in unit tests.
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestRequestRetriesOnRetryableStatus(t *testing.T) {
	tr := &scriptedTransport{
		responses: []*schemas.Response{
			{Status: 503, Body: []byte(`{}`)},
			{Status: 200, Body: []byte(`{"currentStep":"pending"}`)},
		},
		errs: []error{nil, nil},
	}
	c := newTestClient(t, tr, testAPIConfig())

	payload, status, err := c.Request(context.Background(), "GET", "https://svc/v", nil)
	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Equal(t, schemas.StepPending, payload.Step())
	assert.Len(t, tr.calls, 2)
}

func TestRequestDoesNotRetryTerminalStatus(t *testing.T) {
	tr := &scriptedTransport{
		responses: []*schemas.Response{{Status: 404, Body: nil}},
		errs:      []error{nil},
	}
	c := newTestClient(t, tr, testAPIConfig())

	payload, status, err := c.Request(context.Background(), "GET", "https://svc/v", nil)
	require.NoError(t, err)
	assert.Equal(t, 404, status)
	assert.Nil(t, payload)
	assert.Len(t, tr.calls, 1)
}

func TestRequestReturnsLastStatusAfterExhaustion(t *testing.T) {
	// Both attempts hit a retryable status; the last pair is returned without
	// an error and the caller inspects it.
	tr := &scriptedTransport{
		responses: []*schemas.Response{
			{Status: 502, Body: nil},
			{Status: 502, Body: []byte(`{"currentStep":"error"}`)},
		},
		errs: []error{nil, nil},
	}
	c := newTestClient(t, tr, testAPIConfig())

	payload, status, err := c.Request(context.Background(), "GET", "https://svc/v", nil)
	require.NoError(t, err)
	assert.Equal(t, 502, status)
	assert.Equal(t, schemas.StepError, payload.Step())
	assert.Len(t, tr.calls, 2)
}

func TestRequestRaisesLastTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	tr := &scriptedTransport{
		responses: []*schemas.Response{nil, nil},
		errs:      []error{boom, boom},
	}
	c := newTestClient(t, tr, testAPIConfig())

	_, _, err := c.Request(context.Background(), "GET", "https://svc/v", nil)
	require.Error(t, err)
	var terr *schemas.TransportError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, tr.calls, 2)
}

func TestRequestSendsAcceptLanguage(t *testing.T) {
	tr := &scriptedTransport{
		responses: []*schemas.Response{{Status: 200, Body: []byte(`{}`)}},
		errs:      []error{nil},
	}
	c := newTestClient(t, tr, testAPIConfig())
	c.SetAcceptLanguage("de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7")

	_, _, err := c.Request(context.Background(), "GET", "https://svc/v", nil)
	require.NoError(t, err)
	require.Len(t, tr.headers, 1)
	assert.Equal(t, "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7", tr.headers[0]["Accept-Language"])
}

func TestBackoffMonotonicAndCapped(t *testing.T) {
	c := newTestClient(t, &scriptedTransport{}, testAPIConfig())
	c.rng = rand.New(rand.NewSource(1))

	prevBase := time.Duration(0)
	for i := 0; i < 8; i++ {
		d := c.backoff(i)
		assert.LessOrEqual(t, d, 30*time.Second, "attempt %d exceeds cap", i)
		// The deterministic base 2^i dominates jitter, so expected delay is
		// non-decreasing until the cap flattens it.
		base := time.Duration(1<<uint(i)) * time.Second
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		assert.GreaterOrEqual(t, base, prevBase)
		assert.GreaterOrEqual(t, d, prevBase)
		if base < 30*time.Second {
			prevBase = base
		}
	}
}

func TestUploadBackoffGrowth(t *testing.T) {
	c := newTestClient(t, &scriptedTransport{}, testAPIConfig())
	assert.Equal(t, 500*time.Millisecond, c.uploadBackoff(0))
	assert.Equal(t, time.Second, c.uploadBackoff(1))
	assert.Equal(t, 2*time.Second, c.uploadBackoff(2))
	assert.Equal(t, 10*time.Second, c.uploadBackoff(6))
}

func TestUploadBinary(t *testing.T) {
	t.Run("succeeds on second attempt", func(t *testing.T) {
		tr := &scriptedTransport{
			responses: []*schemas.Response{{Status: 500}, {Status: 201}},
			errs:      []error{nil, nil},
		}
		c := newTestClient(t, tr, testAPIConfig())
		ok := c.UploadBinary(context.Background(), "https://svc/upload", []byte{1, 2, 3}, "image/png")
		assert.True(t, ok)
		assert.Len(t, tr.calls, 2)
		assert.Equal(t, "image/png", tr.headers[0]["Content-Type"])
	})

	t.Run("returns false after exhausting attempts", func(t *testing.T) {
		tr := &scriptedTransport{
			responses: []*schemas.Response{{Status: 500}, {Status: 500}},
			errs:      []error{nil, nil},
		}
		c := newTestClient(t, tr, testAPIConfig())
		assert.False(t, c.UploadBinary(context.Background(), "https://svc/upload", []byte{1}, "image/png"))
		assert.Len(t, tr.calls, 2)
	})

	t.Run("never raises on transport errors", func(t *testing.T) {
		tr := &scriptedTransport{
			responses: []*schemas.Response{nil, nil},
			errs:      []error{errors.New("broken pipe"), errors.New("broken pipe")},
		}
		c := newTestClient(t, tr, testAPIConfig())
		assert.False(t, c.UploadBinary(context.Background(), "https://svc/upload", []byte{1}, "image/png"))
	})
}

func TestLocaleHeader(t *testing.T) {
	assert.Equal(t, "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7", localeHeader("de-DE"))
	assert.Equal(t, "fr,fr;q=0.9,en-US;q=0.8,en;q=0.7", localeHeader("fr"))
}
