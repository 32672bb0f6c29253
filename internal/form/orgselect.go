// File: internal/form/orgselect.go
// Description: Selection protocol for the organization combobox. The markup
// underneath varies across deployments, so the protocol negotiates: derive
// search terms, wait for a results menu, alternate keyboard and synthetic
// pointer selection, and confirm by reading back a hidden identifier or a
// rendered selected-organization card. Every stage has a bounded budget and a
// defined exit; no stage raises.

package form

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/api/schemas"
	"github.com/veriform/veriform-cli/internal/pacing"
)

// protocolState tracks the negotiation for logging and tests.
type protocolState int

const (
	stateIdle protocolState = iota
	stateSearchTermChosen
	stateOptionsVisible
	stateSelectionAttempted
	stateConfirmed
	stateExhausted
)

func (s protocolState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSearchTermChosen:
		return "search_term_chosen"
	case stateOptionsVisible:
		return "options_visible"
	case stateSelectionAttempted:
		return "selection_attempted"
	case stateConfirmed:
		return "confirmed"
	case stateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Read-back selectors. Hidden identifier fields are invisible by nature, so
// they are probed by presence and value, never by visibility.
var (
	selectedCardSelectors = []string{
		`[data-testid="selected-organization"]`,
		`.selected-org-card`,
		`#selected-organization`,
	}
	hiddenOrgIDSelectors = []string{
		`input[name="organizationId"]`,
		`input[name="schoolId"]`,
		`#organization-id`,
	}
	menuOptionSelectors = []string{`[role="option"]`, `li`}
)

// OrgProtocolConfig bounds every wait in the protocol.
type OrgProtocolConfig struct {
	MenuTimeout     time.Duration // wait for the results menu per term
	MenuPollStep    time.Duration
	SelectionRounds int           // keyboard/pointer rounds per term
	BindTimeout     time.Duration // wait for async hidden-id binding after tab-out
	BindPollStep    time.Duration
}

// DefaultOrgProtocolConfig mirrors observed deployment behavior: menus render
// within a few seconds, identifier binding lags blur by well under two.
func DefaultOrgProtocolConfig() OrgProtocolConfig {
	return OrgProtocolConfig{
		MenuTimeout:     6 * time.Second,
		MenuPollStep:    250 * time.Millisecond,
		SelectionRounds: 4,
		BindTimeout:     2 * time.Second,
		BindPollStep:    250 * time.Millisecond,
	}
}

// OrgSelector drives the protocol against one document context.
type OrgSelector struct {
	doc      schemas.DocumentContext
	resolver *Resolver
	pace     *pacing.Policy
	cfg      OrgProtocolConfig
	logger   *zap.Logger
}

// NewOrgSelector builds a selector with default protocol bounds.
func NewOrgSelector(doc schemas.DocumentContext, resolver *Resolver, pace *pacing.Policy, logger *zap.Logger) *OrgSelector {
	return &OrgSelector{
		doc:      doc,
		resolver: resolver,
		pace:     pace,
		cfg:      DefaultOrgProtocolConfig(),
		logger:   logger.Named("orgselect"),
	}
}

// deriveSearchTerms builds the ordered candidate terms for an organization
// name: the trailing segment of a hyphenated compound first (the more specific
// local campus name), then the name with hyphens as spaces, then the raw name.
// Terms shorter than two characters are skipped.
func deriveSearchTerms(name string) []string {
	var raw []string
	if strings.Contains(name, "-") {
		parts := strings.Split(name, "-")
		raw = append(raw, strings.TrimSpace(parts[len(parts)-1]))
		raw = append(raw, strings.Join(strings.Fields(strings.ReplaceAll(name, "-", " ")), " "))
	}
	raw = append(raw, name)

	seen := make(map[string]bool, len(raw))
	terms := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if len(t) < 2 || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

// hiddenOrgID returns the bound organization identifier, or "".
func hiddenOrgID(ctx context.Context, doc schemas.DocumentContext) string {
	for _, sel := range hiddenOrgIDSelectors {
		n, err := doc.Count(ctx, sel)
		if err != nil || n == 0 {
			continue
		}
		if v, err := doc.Value(ctx, sel); err == nil && v != "" {
			return v
		}
	}
	return ""
}

// selectedCardText returns the rendered selected-organization label, or "".
func selectedCardText(ctx context.Context, doc schemas.DocumentContext) string {
	for _, sel := range selectedCardSelectors {
		visible, err := doc.Visible(ctx, sel)
		if err != nil || !visible {
			continue
		}
		if t, err := doc.Text(ctx, sel); err == nil {
			if t = strings.TrimSpace(t); t != "" {
				return t
			}
		}
	}
	return ""
}

// confirmation computes the outcome from current evidence. Never cached.
func (o *OrgSelector) confirmation(ctx context.Context) schemas.OrgSelectionOutcome {
	id := hiddenOrgID(ctx, o.doc)
	text := selectedCardText(ctx, o.doc)
	switch {
	case id != "":
		return schemas.OrgSelectionOutcome{Confirmation: schemas.OrgConfirmedHiddenID, OrgID: id, DisplayText: text}
	case text != "":
		// Weak: some deployments never expose a hidden identifier.
		return schemas.OrgSelectionOutcome{Confirmation: schemas.OrgConfirmedContainer, DisplayText: text}
	default:
		return schemas.OrgSelectionOutcome{Confirmation: schemas.OrgNotSelected}
	}
}

// Select runs the full protocol for one organization name. All failure is
// communicated through the outcome; the caller decides severity.
func (o *OrgSelector) Select(ctx context.Context, orgName string) schemas.OrgSelectionOutcome {
	// Idempotent re-entry: an existing selection is accepted as-is.
	if out := o.confirmation(ctx); out.Confirmed() {
		o.logger.Info("Organization already selected", zap.String("state", stateConfirmed.String()))
		return out
	}

	inputSel, found := o.resolver.LocateAny(ctx, o.doc, o.resolver.Chain(FieldOrganization))
	if !found {
		o.logger.Error("Organization combobox not found; protocol cannot start")
		return schemas.OrgSelectionOutcome{Confirmation: schemas.OrgNotSelected}
	}

	terms := deriveSearchTerms(orgName)
	for _, term := range terms {
		out := o.runTerm(ctx, inputSel, term)
		if !out.Confirmed() {
			continue
		}
		if out.Confirmation == schemas.OrgConfirmedContainer && out.OrgID == "" {
			// Forced-write remediation: one extra round with the exact full
			// name, chasing the hidden identifier before settling for weak
			// confirmation.
			o.logger.Warn("Weak confirmation; retrying once with the exact organization name",
				zap.String("term", term))
			if forced := o.runTerm(ctx, inputSel, orgName); forced.OrgID != "" {
				return forced
			}
		}
		o.logger.Info("Organization selection confirmed",
			zap.String("state", stateConfirmed.String()),
			zap.String("confirmation", string(out.Confirmation)))
		return out
	}

	// Terminal fallback: raw value injection with change notifications. Logged
	// as an error for operator diagnosis, never treated as success.
	o.logger.Error("Organization selection exhausted; injecting raw value as last resort",
		zap.String("state", stateExhausted.String()),
		zap.String("organization", orgName),
		zap.Int("terms_tried", len(terms)),
		zap.String("detail", (&schemas.SelectionUnconfirmedError{Organization: orgName, TermsTried: len(terms)}).Error()))
	if err := o.doc.ForceValue(ctx, inputSel, orgName); err != nil {
		o.logger.Error("Raw value injection failed", zap.Error(err))
	}
	return schemas.OrgSelectionOutcome{Confirmation: schemas.OrgNotSelected}
}

// runTerm executes one search-and-select round for a single term.
func (o *OrgSelector) runTerm(ctx context.Context, inputSel, term string) schemas.OrgSelectionOutcome {
	state := stateSearchTermChosen
	o.logger.Debug("Typing search term", zap.String("term", term), zap.String("state", state.String()))

	if err := o.doc.Focus(ctx, inputSel); err != nil {
		o.logger.Debug("Focus failed", zap.Error(err))
	}
	// Clear residue twice over: value clear plus a backspace for controls that
	// re-render on key events only.
	if err := o.doc.ClearInput(ctx, inputSel); err != nil {
		o.logger.Debug("Clear failed", zap.Error(err))
	}
	_ = o.doc.Press(ctx, "Backspace")
	if err := o.doc.TypeText(ctx, inputSel, term, o.pace.Keystroke()); err != nil {
		o.logger.Debug("Typing failed", zap.Error(err))
		return schemas.OrgSelectionOutcome{Confirmation: schemas.OrgNotSelected}
	}

	menuSel, ok := o.waitForMenu(ctx, inputSel)
	if !ok {
		o.logger.Debug("No results menu appeared for term", zap.String("term", term))
		return schemas.OrgSelectionOutcome{Confirmation: schemas.OrgNotSelected}
	}
	state = stateOptionsVisible
	o.logger.Debug("Results menu visible", zap.String("menu", menuSel), zap.String("state", state.String()))

	for round := 0; round < o.cfg.SelectionRounds; round++ {
		if round%2 == 0 {
			o.keyboardSelect(ctx, inputSel)
		} else {
			o.pointerSelect(ctx, menuSel)
		}
		state = stateSelectionAttempted
		o.logger.Debug("Selection attempted",
			zap.Int("round", round), zap.String("state", state.String()))
		if hiddenOrgID(ctx, o.doc) != "" {
			break
		}
		_ = pacing.SleepFor(ctx, o.cfg.MenuPollStep)
	}

	// Tab out to force blur-triggered binding, then give the identifier a
	// short window to appear asynchronously.
	_ = o.doc.Press(ctx, "Tab")
	o.awaitBinding(ctx)

	return o.confirmation(ctx)
}

// keyboardSelect picks the highlighted option via arrow-down plus enter.
func (o *OrgSelector) keyboardSelect(ctx context.Context, inputSel string) {
	if err := o.doc.Focus(ctx, inputSel); err != nil {
		o.logger.Debug("Focus before keyboard select failed", zap.Error(err))
	}
	_ = o.doc.Press(ctx, "ArrowDown")
	_ = o.doc.Press(ctx, "Enter")
}

// pointerSelect dispatches a synthetic pointer sequence straight at the first
// option node. Naive UI-level clicks are observed to time out against
// animated menus, so visibility waits are bypassed on purpose.
func (o *OrgSelector) pointerSelect(ctx context.Context, menuSel string) {
	for _, opt := range menuOptionSelectors {
		sel := menuSel + " " + opt
		n, err := o.doc.Count(ctx, sel)
		if err != nil || n == 0 {
			continue
		}
		if err := o.doc.ClickPointer(ctx, sel); err != nil {
			o.logger.Debug("Pointer selection failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		return
	}
}

// waitForMenu polls for the results menu, identified by the conventional
// "<input id>-menu" id or by the input's aria-controls attribute.
func (o *OrgSelector) waitForMenu(ctx context.Context, inputSel string) (string, bool) {
	var candidates []string
	if id, ok, err := o.doc.Attr(ctx, inputSel, "id"); err == nil && ok && id != "" {
		candidates = append(candidates, "#"+id+"-menu")
	}
	if controls, ok, err := o.doc.Attr(ctx, inputSel, "aria-controls"); err == nil && ok && controls != "" {
		candidates = append(candidates, "#"+controls)
	}
	candidates = append(candidates, `[role="listbox"]`)

	deadline := time.Now().Add(o.cfg.MenuTimeout)
	for {
		for _, sel := range candidates {
			if visible, err := o.doc.Visible(ctx, sel); err == nil && visible {
				return sel, true
			}
		}
		if time.Now().After(deadline) {
			return "", false
		}
		if err := pacing.SleepFor(ctx, o.cfg.MenuPollStep); err != nil {
			return "", false
		}
	}
}

// awaitBinding polls for the hidden identifier after tab-out.
func (o *OrgSelector) awaitBinding(ctx context.Context) {
	deadline := time.Now().Add(o.cfg.BindTimeout)
	for {
		if hiddenOrgID(ctx, o.doc) != "" {
			return
		}
		if time.Now().After(deadline) {
			return
		}
		if err := pacing.SleepFor(ctx, o.cfg.BindPollStep); err != nil {
			return
		}
	}
}
