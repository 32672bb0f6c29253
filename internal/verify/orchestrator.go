// File: internal/verify/orchestrator.go
// Description: Top-level state machine for one verification run. It is
// injected with fully configured collaborators via interfaces, making it
// decoupled and testable. Each instance is single-use.

package verify

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/api/schemas"
	"github.com/veriform/veriform-cli/internal/config"
	"github.com/veriform/veriform-cli/internal/observability"
	"github.com/veriform/veriform-cli/internal/pacing"
)

// maxTraceLen bounds the stack trace attached to a recovered panic result.
const maxTraceLen = 2000

// dryRunMessage prefixes the result of a run that stopped short of submitting.
const dryRunMessage = "DRY_RUN: form filled and snapshot collected; no submission performed"

// StatusPoller fetches the verification's current workflow step.
type StatusPoller interface {
	Precheck(ctx context.Context, verificationID string) (schemas.WorkflowStep, schemas.StatusPayload, error)
}

// FormDriver drives the form stage: context location, fill, gate, submit.
type FormDriver interface {
	LocateFormContext(ctx context.Context, page schemas.Page) (schemas.DocumentContext, error)
	Fill(ctx context.Context, doc schemas.DocumentContext, profile schemas.VerificationProfile) schemas.OrgSelectionOutcome
	Snapshot(ctx context.Context, doc schemas.DocumentContext) schemas.FormReadySnapshot
	SubmitGate(ctx context.Context, doc schemas.DocumentContext) (schemas.FormReadySnapshot, error)
	ClickSubmit(ctx context.Context, doc schemas.DocumentContext) error
}

// Orchestrator manages the lifecycle of a single verification run:
// Init, Precheck, BrowserFill, Submitted, Polling, Done.
type Orchestrator struct {
	cfg       *config.Config
	logger    *zap.Logger
	session   schemas.BrowserSession
	poller    StatusPoller
	form      FormDriver
	sink      schemas.DiagnosticsSink
	inspector *StatusInspector

	used  atomic.Bool
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator with its dependencies provided as interfaces.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	session schemas.BrowserSession,
	poller StatusPoller,
	form FormDriver,
	sink schemas.DiagnosticsSink,
) (*Orchestrator, error) {
	if cfg == nil || logger == nil || session == nil || poller == nil || form == nil || sink == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
		session:   session,
		poller:    poller,
		form:      form,
		sink:      sink,
		inspector: NewStatusInspector(logger),
		sleep:     pacing.SleepFor,
	}, nil
}

// Run executes one verification run. Expected failures are returned as a
// structured RunResult; the only error this method returns is the single-use
// violation. A panic anywhere in the run is recovered into a failure result
// carrying a truncated stack trace.
func (o *Orchestrator) Run(ctx context.Context, profile schemas.VerificationProfile) (result schemas.RunResult, err error) {
	if !o.used.CompareAndSwap(false, true) {
		return schemas.RunResult{}, schemas.ErrSingleUse
	}
	defer func() {
		if r := recover(); r != nil {
			err = nil
			result = schemas.RunResult{
				Success: false,
				Message: fmt.Sprintf("run aborted by panic: %v", r),
				Trace:   truncatedStack(),
			}
			o.logger.Error("Run recovered from panic", zap.Any("panic", r))
		}
	}()
	return o.run(ctx, profile), nil
}

func (o *Orchestrator) run(ctx context.Context, profile schemas.VerificationProfile) schemas.RunResult {
	logger := o.logger.With(zap.String("verification_id", observability.MaskID(profile.VerificationID)))
	logger.Info("Run starting", zap.Bool("dry_run", o.cfg.Verify.DryRun), zap.Bool("force_continue", o.cfg.Verify.ForceContinue))

	// -- Precheck --
	step, payload, err := o.poller.Precheck(ctx, profile.VerificationID)
	if err != nil {
		return schemas.RunResult{Success: false, Message: fmt.Sprintf("precheck failed: %v", err)}
	}
	if step != schemas.StepCollectPersonalInfo && !o.cfg.Verify.ForceContinue {
		success := step != schemas.StepError
		logger.Info("Run ended at precheck", zap.String("step", string(step)), zap.Bool("success", success))
		return schemas.RunResult{
			Success: success,
			Message: fmt.Sprintf("run ended at precheck: step %q", step),
			Step:    step,
			Status:  payload,
		}
	}

	// -- BrowserFill --
	if err := o.session.Ensure(ctx); err != nil {
		return schemas.RunResult{Success: false, Message: fmt.Sprintf("browser session unavailable: %v", err)}
	}
	page, err := o.session.NewPage(ctx)
	if err != nil {
		return schemas.RunResult{Success: false, Message: fmt.Sprintf("page creation failed: %v", err)}
	}
	defer func() {
		if cerr := page.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Debug("Page close failed", zap.Error(cerr))
		}
	}()

	url := fmt.Sprintf("%s/verify/%s", o.cfg.Verify.BaseURL, profile.VerificationID)
	if err := page.Navigate(ctx, url, o.cfg.Network.NavigationTimeout); err != nil {
		if !o.cfg.Verify.ForceContinue {
			return schemas.RunResult{Success: false, Message: fmt.Sprintf("navigation failed: %v", err)}
		}
		logger.Warn("Navigation failed; continuing under diagnostic override", zap.Error(err))
	}
	// A soft wait: exceeding the idle budget is tolerated everywhere.
	_ = page.WaitNetworkIdle(ctx, o.cfg.Network.IdleQuiet, o.cfg.Network.IdleTimeout)

	doc, err := o.form.LocateFormContext(ctx, page)
	if err != nil {
		if !o.cfg.Verify.ForceContinue {
			o.sink.DumpPage(ctx, page, "context_not_found")
			return schemas.RunResult{Success: false, Message: fmt.Sprintf("form context not found: %v", err)}
		}
		logger.Warn("Form context not found; using main document under diagnostic override", zap.Error(err))
		doc = page.MainDocument()
	}

	outcome := o.form.Fill(ctx, doc, profile)
	logger.Info("Form fill complete",
		zap.String("org_confirmation", string(outcome.Confirmation)),
		zap.String("org_id", outcome.OrgID))

	if o.cfg.Verify.DryRun {
		snap := o.form.Snapshot(ctx, doc)
		o.sink.DumpPage(ctx, page, "dry_run")
		return schemas.RunResult{Success: true, Message: dryRunMessage, Snapshot: &snap}
	}

	// -- Submit gate --
	snap, err := o.form.SubmitGate(ctx, doc)
	if err != nil {
		o.sink.DumpPage(ctx, page, "gate_failed")
		return schemas.RunResult{
			Success:  false,
			Message:  fmt.Sprintf("aborted before submit: %v", err),
			Snapshot: &snap,
		}
	}

	// -- Submitted --
	if err := o.form.ClickSubmit(ctx, doc); err != nil {
		o.sink.DumpPage(ctx, page, "submit_failed")
		return schemas.RunResult{Success: false, Message: fmt.Sprintf("submit failed: %v", err), Snapshot: &snap}
	}
	_ = page.WaitNetworkIdle(ctx, o.cfg.Network.IdleQuiet, o.cfg.Network.IdleTimeout)
	o.sink.DumpPage(ctx, page, "post_submit")

	// -- Polling --
	for attempt := 0; attempt < o.cfg.Verify.PollAttempts; attempt++ {
		if err := o.sleep(ctx, o.cfg.Verify.PollInterval); err != nil {
			return schemas.RunResult{Success: false, Message: fmt.Sprintf("run canceled during polling: %v", err)}
		}
		step, payload, err = o.poller.Precheck(ctx, profile.VerificationID)
		if err != nil {
			logger.Warn("Poll attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if step == schemas.StepCollectPersonalInfo {
			continue
		}
		if step == schemas.StepError {
			msg := (&schemas.WorkflowError{Step: step, Status: payload}).Error()
			if o.cfg.Verify.ForceContinue {
				if detail, ok := o.inspector.Inspect(ctx, page); ok {
					msg += "; page reports: " + detail
				}
			}
			return schemas.RunResult{Success: false, Message: msg, Step: step, Status: payload}
		}
		logger.Info("Workflow advanced", zap.String("step", string(step)), zap.Int("attempt", attempt))
		return schemas.RunResult{
			Success: true,
			Message: fmt.Sprintf("step advanced to %q", step),
			Step:    step,
			Status:  payload,
		}
	}
	return schemas.RunResult{Success: false, Message: "step not advanced", Step: step, Status: payload}
}

// truncatedStack captures the current goroutine's stack, bounded for result
// payloads.
func truncatedStack() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	s := string(buf[:n])
	if len(s) > maxTraceLen {
		s = s[:maxTraceLen]
	}
	return s
}
