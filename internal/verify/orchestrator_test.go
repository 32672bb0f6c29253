// File: internal/verify/orchestrator_test.go
package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/api/schemas"
	"github.com/veriform/veriform-cli/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Stub collaborators --

type stubPoller struct {
	steps    []schemas.WorkflowStep
	payloads []schemas.StatusPayload
	errs     []error
	calls    int
}

func (p *stubPoller) Precheck(ctx context.Context, id string) (schemas.WorkflowStep, schemas.StatusPayload, error) {
	i := p.calls
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	p.calls++
	var payload schemas.StatusPayload
	if p.payloads != nil {
		payload = p.payloads[i]
	}
	var err error
	if p.errs != nil {
		err = p.errs[i]
	}
	return p.steps[i], payload, err
}

type stubDoc struct{ schemas.DocumentContext }

type stubPage struct {
	navigations []string
	content     string
	closed      bool
}

func (p *stubPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	p.navigations = append(p.navigations, url)
	return nil
}
func (p *stubPage) WaitNetworkIdle(ctx context.Context, quiet, max time.Duration) error { return nil }
func (p *stubPage) Documents(ctx context.Context) ([]schemas.DocumentContext, error) {
	return []schemas.DocumentContext{&stubDoc{}}, nil
}
func (p *stubPage) MainDocument() schemas.DocumentContext          { return &stubDoc{} }
func (p *stubPage) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }
func (p *stubPage) Content(ctx context.Context) (string, error)    { return p.content, nil }
func (p *stubPage) Close(ctx context.Context) error {
	p.closed = true
	return nil
}

type stubSession struct {
	page      *stubPage
	ensured   bool
	ensureErr error
}

func (s *stubSession) Ensure(ctx context.Context) error {
	s.ensured = true
	return s.ensureErr
}
func (s *stubSession) NewPage(ctx context.Context) (schemas.Page, error) { return s.page, nil }
func (s *stubSession) Transport() schemas.Transport                      { return nil }
func (s *stubSession) Close(ctx context.Context) error                   { return nil }

type stubForm struct {
	fillCalled   bool
	fillPanics   bool
	gateErr      error
	gateSnap     schemas.FormReadySnapshot
	submitCalled bool
	submitErr    error
}

func (f *stubForm) LocateFormContext(ctx context.Context, page schemas.Page) (schemas.DocumentContext, error) {
	return &stubDoc{}, nil
}

func (f *stubForm) Fill(ctx context.Context, doc schemas.DocumentContext, profile schemas.VerificationProfile) schemas.OrgSelectionOutcome {
	f.fillCalled = true
	if f.fillPanics {
		panic("unexpected driver state")
	}
	return schemas.OrgSelectionOutcome{Confirmation: schemas.OrgConfirmedHiddenID, OrgID: "42"}
}

func (f *stubForm) Snapshot(ctx context.Context, doc schemas.DocumentContext) schemas.FormReadySnapshot {
	return f.gateSnap
}

func (f *stubForm) SubmitGate(ctx context.Context, doc schemas.DocumentContext) (schemas.FormReadySnapshot, error) {
	return f.gateSnap, f.gateErr
}

func (f *stubForm) ClickSubmit(ctx context.Context, doc schemas.DocumentContext) error {
	f.submitCalled = true
	return f.submitErr
}

type stubSink struct {
	labels []string
}

func (s *stubSink) DumpPage(ctx context.Context, page schemas.Page, label string) {
	s.labels = append(s.labels, label)
}

// -- Harness --

type harness struct {
	cfg     *config.Config
	poller  *stubPoller
	session *stubSession
	form    *stubForm
	sink    *stubSink
	orch    *Orchestrator
}

func newHarness(t *testing.T, poller *stubPoller) *harness {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Verify.PollAttempts = 6
	cfg.Verify.PollInterval = time.Millisecond
	cfg.Network.IdleQuiet = time.Millisecond
	cfg.Network.IdleTimeout = time.Millisecond

	h := &harness{
		cfg:     cfg,
		poller:  poller,
		session: &stubSession{page: &stubPage{}},
		form: &stubForm{
			gateSnap: schemas.FormReadySnapshot{SchoolID: "42", ConsentChecked: true},
		},
		sink: &stubSink{},
	}
	orch, err := New(cfg, zap.NewNop(), h.session, h.poller, h.form, h.sink)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func testProfile() schemas.VerificationProfile {
	return schemas.VerificationProfile{
		FirstName:        "Ada",
		LastName:         "Lovelace",
		Email:            "ada@example.edu",
		BirthDate:        "1998-12-10",
		OrganizationName: "Acme University",
		VerificationID:   "64f1ab22309e7a6b2a3d9f00",
	}
}

// -- Tests --

func TestNewRejectsNilDependencies(t *testing.T) {
	_, err := New(nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestRunEndsAtPrecheckOnErrorStep(t *testing.T) {
	h := newHarness(t, &stubPoller{steps: []schemas.WorkflowStep{schemas.StepError}})

	res, err := h.orch.Run(context.Background(), testProfile())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "error")
	assert.False(t, h.session.ensured, "no browser interaction expected")
	assert.False(t, h.form.fillCalled)
}

func TestRunEndsAtPrecheckOnAdvancedStep(t *testing.T) {
	h := newHarness(t, &stubPoller{steps: []schemas.WorkflowStep{schemas.StepPending}})

	res, err := h.orch.Run(context.Background(), testProfile())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, schemas.StepPending, res.Step)
	assert.False(t, h.session.ensured)
}

func TestRunStepNotAdvanced(t *testing.T) {
	// Precheck plus all six polls return the initial step.
	h := newHarness(t, &stubPoller{steps: []schemas.WorkflowStep{schemas.StepCollectPersonalInfo}})

	res, err := h.orch.Run(context.Background(), testProfile())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "step not advanced", res.Message)
	assert.True(t, h.form.submitCalled)
	assert.Equal(t, 7, h.poller.calls, "one precheck plus six polls")
	assert.Contains(t, h.sink.labels, "post_submit")
}

func TestRunAdvancesDuringPolling(t *testing.T) {
	h := newHarness(t, &stubPoller{steps: []schemas.WorkflowStep{
		schemas.StepCollectPersonalInfo, // precheck
		schemas.StepCollectPersonalInfo, // poll 1
		schemas.StepCollectPersonalInfo, // poll 2
		schemas.StepPending,             // poll 3
	}})

	res, err := h.orch.Run(context.Background(), testProfile())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, schemas.StepPending, res.Step)
	assert.Equal(t, 4, h.poller.calls, "polling must stop the moment the step advances")
}

func TestRunFailsWhenPollingHitsErrorStep(t *testing.T) {
	h := newHarness(t, &stubPoller{
		steps: []schemas.WorkflowStep{
			schemas.StepCollectPersonalInfo,
			schemas.StepError,
		},
		payloads: []schemas.StatusPayload{nil, {"currentStep": "error", "reason": "rejected"}},
	})

	res, err := h.orch.Run(context.Background(), testProfile())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, schemas.StepError, res.Step)
	assert.NotNil(t, res.Status)
}

func TestRunDryRunPerformsNoSubmit(t *testing.T) {
	h := newHarness(t, &stubPoller{steps: []schemas.WorkflowStep{schemas.StepCollectPersonalInfo}})
	h.cfg.Verify.DryRun = true

	res, err := h.orch.Run(context.Background(), testProfile())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "DRY_RUN")
	assert.NotNil(t, res.Snapshot)
	assert.True(t, h.form.fillCalled)
	assert.False(t, h.form.submitCalled, "dry run must never touch the submit control")
	assert.Equal(t, 1, h.poller.calls, "no polling after a dry run")
}

func TestRunGateFailureAbortsBeforeSubmit(t *testing.T) {
	h := newHarness(t, &stubPoller{steps: []schemas.WorkflowStep{schemas.StepCollectPersonalInfo}})
	h.form.gateSnap = schemas.FormReadySnapshot{ConsentChecked: true}
	h.form.gateErr = &schemas.SubmitGateFailedError{Snapshot: h.form.gateSnap}

	res, err := h.orch.Run(context.Background(), testProfile())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.False(t, h.form.submitCalled)
	require.NotNil(t, res.Snapshot)
	assert.Contains(t, h.sink.labels, "gate_failed")
}

func TestRunSingleUseGuard(t *testing.T) {
	h := newHarness(t, &stubPoller{steps: []schemas.WorkflowStep{schemas.StepPending}})

	_, err := h.orch.Run(context.Background(), testProfile())
	require.NoError(t, err)

	_, err = h.orch.Run(context.Background(), testProfile())
	assert.ErrorIs(t, err, schemas.ErrSingleUse)
}

func TestRunSingleUseGuardAfterFailure(t *testing.T) {
	h := newHarness(t, &stubPoller{steps: []schemas.WorkflowStep{schemas.StepError}})

	res, err := h.orch.Run(context.Background(), testProfile())
	require.NoError(t, err)
	require.False(t, res.Success)

	_, err = h.orch.Run(context.Background(), testProfile())
	assert.ErrorIs(t, err, schemas.ErrSingleUse)
}

func TestRunRecoversPanicIntoResult(t *testing.T) {
	h := newHarness(t, &stubPoller{steps: []schemas.WorkflowStep{schemas.StepCollectPersonalInfo}})
	h.form.fillPanics = true

	res, err := h.orch.Run(context.Background(), testProfile())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "panic")
	assert.NotEmpty(t, res.Trace)
	assert.LessOrEqual(t, len(res.Trace), maxTraceLen)
}

func TestStatusInspector(t *testing.T) {
	t.Run("finds a status message", func(t *testing.T) {
		page := &stubPage{content: `<div class="alert">We were unable to verify your student status</div>`}
		msg, ok := NewStatusInspector(zap.NewNop()).Inspect(context.Background(), page)
		require.True(t, ok)
		assert.Contains(t, msg, "unable to verify")
	})

	t.Run("soft-fails on a clean page", func(t *testing.T) {
		page := &stubPage{content: "<html><body>All good</body></html>"}
		_, ok := NewStatusInspector(zap.NewNop()).Inspect(context.Background(), page)
		assert.False(t, ok)
	})
}
