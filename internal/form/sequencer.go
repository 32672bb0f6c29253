// File: internal/form/sequencer.go
// Description: Fills the form in a fixed field order, collects the read-back
// snapshot and enforces the submit-readiness gate. Per-field failures are
// best-effort by design; the gate is where correctness is enforced.

package form

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/api/schemas"
	"github.com/veriform/veriform-cli/internal/pacing"
)

// birthDatePattern accepts YYYY-M-D shaped input only.
var birthDatePattern = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)

// monthNames maps numeric months to the English names many deployments expect
// typed into the month combobox.
var monthNames = map[int]string{
	1: "January", 2: "February", 3: "March", 4: "April",
	5: "May", 6: "June", 7: "July", 8: "August",
	9: "September", 10: "October", 11: "November", 12: "December",
}

// consentHints classify a checkbox as consent-like from its name and label.
var consentHints = []string{"consent", "terms", "agree", "privacy", "policy", "acknowledg"}

// snapshotFields are the simple fields read back into the diagnostic snapshot.
var snapshotFields = []FieldKey{
	FieldFirstName, FieldLastName, FieldEmail,
	FieldBirthMonth, FieldBirthDay, FieldBirthYear,
}

// Sequencer drives the fixed-order fill and the submit gate.
type Sequencer struct {
	resolver *Resolver
	pace     *pacing.Policy
	logger   *zap.Logger
}

// NewSequencer builds a Sequencer.
func NewSequencer(resolver *Resolver, pace *pacing.Policy, logger *zap.Logger) *Sequencer {
	return &Sequencer{
		resolver: resolver,
		pace:     pace,
		logger:   logger.Named("sequencer"),
	}
}

// Fill completes the form in order: first name, last name, email,
// organization, birth date, consent checkboxes. The organization outcome is
// returned for diagnostics; everything else is best-effort.
func (s *Sequencer) Fill(ctx context.Context, doc schemas.DocumentContext, profile schemas.VerificationProfile) schemas.OrgSelectionOutcome {
	_ = s.pace.Sleep(ctx)
	s.resolver.FillText(ctx, doc, FieldFirstName, profile.FirstName)
	_ = s.pace.Sleep(ctx)
	s.resolver.FillText(ctx, doc, FieldLastName, profile.LastName)
	_ = s.pace.Sleep(ctx)
	s.resolver.FillText(ctx, doc, FieldEmail, profile.Email)

	_ = s.pace.Sleep(ctx)
	org := NewOrgSelector(doc, s.resolver, s.pace, s.logger)
	outcome := org.Select(ctx, profile.OrganizationName)

	_ = s.pace.Sleep(ctx)
	s.fillBirthDate(ctx, doc, profile.BirthDate)

	_ = s.pace.Sleep(ctx)
	s.CheckConsent(ctx, doc)

	return outcome
}

// fillBirthDate decomposes an ISO date into the day/month/year sub-controls.
// Month is typed as its English name and committed with Enter; day and year
// are only written when the rendered value does not already hold the target.
func (s *Sequencer) fillBirthDate(ctx context.Context, doc schemas.DocumentContext, iso string) {
	m := birthDatePattern.FindStringSubmatch(iso)
	if m == nil {
		s.logger.Warn("Birth date does not match YYYY-M-D; skipping", zap.String("value", iso))
		return
	}
	year, day := m[1], m[3]
	monthNum, err := strconv.Atoi(m[2])
	if err != nil || monthNum < 1 || monthNum > 12 {
		s.logger.Warn("Birth month out of range; skipping", zap.String("value", m[2]))
		return
	}

	if sel, err := s.resolver.Resolve(ctx, doc, FieldBirthMonth); err == nil {
		if cerr := doc.Click(ctx, sel); cerr != nil {
			s.logger.Debug("Month focus click failed", zap.Error(cerr))
		}
		_ = doc.ClearInput(ctx, sel)
		if terr := doc.TypeText(ctx, sel, monthNames[monthNum], s.pace.Keystroke()); terr != nil {
			s.logger.Warn("Month typing failed", zap.Error(terr))
		}
		_ = doc.Press(ctx, "Enter")
	} else {
		s.logger.Warn("Birth month control not found", zap.Error(err))
	}

	s.fillIfAbsent(ctx, doc, FieldBirthDay, day)
	s.fillIfAbsent(ctx, doc, FieldBirthYear, year)
}

// fillIfAbsent writes a numeric sub-field only when the rendered value does
// not already contain the target. Re-typing an already-correct date control
// tends to reset it.
func (s *Sequencer) fillIfAbsent(ctx context.Context, doc schemas.DocumentContext, key FieldKey, value string) {
	sel, err := s.resolver.Resolve(ctx, doc, key)
	if err != nil {
		s.logger.Warn("Date control not found", zap.String("field", string(key)), zap.Error(err))
		return
	}
	if cur, err := doc.Value(ctx, sel); err == nil && strings.Contains(cur, value) {
		return
	}
	_ = doc.Click(ctx, sel)
	_ = doc.ClearInput(ctx, sel)
	if err := doc.TypeText(ctx, sel, value, s.pace.Keystroke()); err != nil {
		s.logger.Warn("Date typing failed", zap.String("field", string(key)), zap.Error(err))
	}
}

// consentLike reports whether a checkbox's surrounding text suggests consent
// or terms semantics.
func consentLike(text string) bool {
	lower := strings.ToLower(text)
	for _, hint := range consentHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// CheckConsent clicks every visible unchecked consent-like checkbox, one click
// per distinct match, and returns the number clicked. Best-effort.
func (s *Sequencer) CheckConsent(ctx context.Context, doc schemas.DocumentContext) int {
	boxes, err := doc.Checkboxes(ctx)
	if err != nil {
		s.logger.Warn("Checkbox enumeration failed", zap.Error(err))
		return 0
	}
	clicked := 0
	for _, box := range boxes {
		if box.Checked || !consentLike(box.Name+" "+box.Label) {
			continue
		}
		if err := doc.Click(ctx, box.Selector); err != nil {
			s.logger.Warn("Consent click failed", zap.String("selector", box.Selector), zap.Error(err))
			continue
		}
		clicked++
	}
	return clicked
}

// consentConfirmed reports whether at least one consent-like checkbox reads
// as checked.
func (s *Sequencer) consentConfirmed(ctx context.Context, doc schemas.DocumentContext) bool {
	boxes, err := doc.Checkboxes(ctx)
	if err != nil {
		return false
	}
	for _, box := range boxes {
		if box.Checked && consentLike(box.Name+" "+box.Label) {
			return true
		}
	}
	return false
}

// Snapshot reads the form back as currently rendered.
func (s *Sequencer) Snapshot(ctx context.Context, doc schemas.DocumentContext) schemas.FormReadySnapshot {
	snap := schemas.FormReadySnapshot{Values: make(map[string]string, len(snapshotFields))}
	for _, key := range snapshotFields {
		sel, err := s.resolver.Resolve(ctx, doc, key)
		if err != nil {
			continue
		}
		if v, err := doc.Value(ctx, sel); err == nil {
			snap.Values[string(key)] = v
		}
	}
	snap.SchoolID = hiddenOrgID(ctx, doc)
	snap.SchoolText = selectedCardText(ctx, doc)
	snap.ConsentChecked = s.consentConfirmed(ctx, doc)
	if n, err := doc.Count(ctx, `[aria-invalid="true"]`); err == nil {
		snap.AriaInvalidCount = n
	}
	return snap
}

// SubmitGate builds the snapshot and enforces the submit-readiness invariant.
// An unconfirmed consent gets one remediation pass before the gate fails.
// Failing the gate never submits speculatively.
func (s *Sequencer) SubmitGate(ctx context.Context, doc schemas.DocumentContext) (schemas.FormReadySnapshot, error) {
	snap := s.Snapshot(ctx, doc)
	if !snap.ConsentChecked {
		s.logger.Warn("Consent unconfirmed; running one remediation pass")
		s.CheckConsent(ctx, doc)
		snap = s.Snapshot(ctx, doc)
	}
	if !snap.SubmitReady() {
		return snap, &schemas.SubmitGateFailedError{Snapshot: snap}
	}
	return snap, nil
}

// ClickSubmit invokes the submit control through its fallback chain:
// conventional test id, generic submit-type button, then a text-matched
// multilingual fallback.
func (s *Sequencer) ClickSubmit(ctx context.Context, doc schemas.DocumentContext) error {
	sel, found := s.resolver.LocateAny(ctx, doc, s.resolver.Chain(FieldSubmit))
	if !found {
		return &schemas.ElementNotFoundError{Field: string(FieldSubmit)}
	}
	if err := doc.Click(ctx, sel); err != nil {
		return err
	}
	s.logger.Info("Submit control clicked", zap.String("selector", sel))
	return s.pace.Sleep(ctx)
}
