// File: internal/api/poller_test.go
package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/api/schemas"
)

func TestPrecheck(t *testing.T) {
	t.Run("parses step and targets the status endpoint", func(t *testing.T) {
		tr := &scriptedTransport{
			responses: []*schemas.Response{{Status: 200, Body: []byte(`{"currentStep":"pending"}`)}},
			errs:      []error{nil},
		}
		c := newTestClient(t, tr, testAPIConfig())
		p := NewPoller(c, "https://svc.example.com/", zap.NewNop())

		step, payload, err := p.Precheck(context.Background(), "abc123def")
		require.NoError(t, err)
		assert.Equal(t, schemas.StepPending, step)
		assert.NotNil(t, payload)
		require.Len(t, tr.calls, 1)
		assert.Equal(t, "GET https://svc.example.com/rest/v2/verification/abc123def", tr.calls[0])
	})

	t.Run("missing step defaults to the initial step", func(t *testing.T) {
		tr := &scriptedTransport{
			responses: []*schemas.Response{{Status: 200, Body: []byte(`{}`)}},
			errs:      []error{nil},
		}
		p := NewPoller(newTestClient(t, tr, testAPIConfig()), "https://svc", zap.NewNop())

		step, _, err := p.Precheck(context.Background(), "abc123def")
		require.NoError(t, err)
		assert.Equal(t, schemas.StepCollectPersonalInfo, step)
	})

	t.Run("is idempotent while the remote step is unchanged", func(t *testing.T) {
		tr := &scriptedTransport{
			responses: []*schemas.Response{{Status: 200, Body: []byte(`{"currentStep":"collectStudentPersonalInfo"}`)}},
			errs:      []error{nil},
		}
		p := NewPoller(newTestClient(t, tr, testAPIConfig()), "https://svc", zap.NewNop())

		for i := 0; i < 3; i++ {
			step, _, err := p.Precheck(context.Background(), "abc123def")
			require.NoError(t, err)
			assert.Equal(t, schemas.StepCollectPersonalInfo, step)
		}
	})

	t.Run("ratchets accept-language to the server locale once", func(t *testing.T) {
		tr := &scriptedTransport{
			responses: []*schemas.Response{
				{Status: 200, Body: []byte(`{"currentStep":"collectStudentPersonalInfo","locale":"de-DE"}`)},
				{Status: 200, Body: []byte(`{"currentStep":"collectStudentPersonalInfo","locale":"de-DE"}`)},
				{Status: 200, Body: []byte(`{"currentStep":"collectStudentPersonalInfo"}`)},
			},
			errs: []error{nil, nil, nil},
		}
		c := newTestClient(t, tr, testAPIConfig())
		p := NewPoller(c, "https://svc", zap.NewNop())

		_, _, err := p.Precheck(context.Background(), "abc123def")
		require.NoError(t, err)
		ratcheted := "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7"
		assert.Equal(t, ratcheted, c.AcceptLanguage())

		// Same locale again: no change needed.
		_, _, err = p.Precheck(context.Background(), "abc123def")
		require.NoError(t, err)
		assert.Equal(t, ratcheted, c.AcceptLanguage())

		// Locale missing from a later payload: the ratchet must not revert.
		_, _, err = p.Precheck(context.Background(), "abc123def")
		require.NoError(t, err)
		assert.Equal(t, ratcheted, c.AcceptLanguage())
	})

	t.Run("propagates transport errors", func(t *testing.T) {
		tr := &scriptedTransport{
			responses: []*schemas.Response{nil, nil},
			errs:      []error{assert.AnError, assert.AnError},
		}
		p := NewPoller(newTestClient(t, tr, testAPIConfig()), "https://svc", zap.NewNop())

		_, _, err := p.Precheck(context.Background(), "abc123def")
		var terr *schemas.TransportError
		assert.ErrorAs(t, err, &terr)
	})
}
