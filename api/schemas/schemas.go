// File: api/schemas/schemas.go
// Description: Shared value types for the verification flow. These are the
// contracts exchanged between the orchestrator, the form layer and the API
// client, kept free of implementation dependencies.

package schemas

// WorkflowStep is the remote verification workflow's current stage identifier,
// as returned by a status precheck.
type WorkflowStep string

const (
	// StepCollectPersonalInfo is the initial step of a fresh verification.
	StepCollectPersonalInfo WorkflowStep = "collectStudentPersonalInfo"
	// StepPending indicates the service accepted the submission and is reviewing it.
	StepPending WorkflowStep = "pending"
	// StepError indicates the remote workflow entered a terminal error state.
	StepError WorkflowStep = "error"
)

// StatusPayload is the raw decoded status document returned by the remote
// service. It is treated as an opaque snapshot; only a handful of well-known
// keys (currentStep, locale) are interpreted.
type StatusPayload map[string]interface{}

// Step extracts the workflow step from the payload, defaulting to the initial
// step when the service omits the field.
func (p StatusPayload) Step() WorkflowStep {
	if p == nil {
		return StepCollectPersonalInfo
	}
	if s, ok := p["currentStep"].(string); ok && s != "" {
		return WorkflowStep(s)
	}
	return StepCollectPersonalInfo
}

// Locale extracts the server-declared locale, or "" when absent.
func (p StatusPayload) Locale() string {
	if p == nil {
		return ""
	}
	if l, ok := p["locale"].(string); ok {
		return l
	}
	return ""
}

// VerificationProfile is the immutable per-run input: the identity to submit
// and the verification being completed. Created once by the caller, never
// mutated by the engine.
type VerificationProfile struct {
	FirstName        string
	LastName         string
	Email            string
	BirthDate        string // ISO date, YYYY-M-D
	OrganizationName string
	VerificationID   string
}

// OrgConfirmation records what evidence backed an organization selection.
type OrgConfirmation string

const (
	// OrgConfirmedHiddenID means the hidden identifier field was populated;
	// the selection is bound into the form's submission payload.
	OrgConfirmedHiddenID OrgConfirmation = "hidden_org_id"
	// OrgConfirmedContainer means only a rendered selected-organization card
	// was observed. Weak evidence, accepted because some deployments never
	// expose a hidden identifier.
	OrgConfirmedContainer OrgConfirmation = "selected_org_container"
	// OrgNotSelected means no confirmation evidence was found.
	OrgNotSelected OrgConfirmation = "not_selected"
)

// OrgSelectionOutcome is the tri-state result of the organization selection
// protocol plus its confirming evidence. Computed fresh on every confirmation
// check; never cached across navigations.
type OrgSelectionOutcome struct {
	Confirmation OrgConfirmation
	OrgID        string
	DisplayText  string
}

// Confirmed reports whether any confirmation evidence, strong or weak, exists.
func (o OrgSelectionOutcome) Confirmed() bool {
	return o.Confirmation != OrgNotSelected && o.Confirmation != ""
}

// FormReadySnapshot is a diagnostic read-back of the form as rendered,
// built once before submission to enforce the submit gate.
type FormReadySnapshot struct {
	Values           map[string]string `json:"values"`
	SchoolID         string            `json:"school_id"`
	SchoolText       string            `json:"school_text"`
	ConsentChecked   bool              `json:"consent_checked"`
	AriaInvalidCount int               `json:"aria_invalid_count"`
}

// SchoolResolved reports whether the organization is satisfied, by hidden
// identifier or by display text alone.
func (s FormReadySnapshot) SchoolResolved() bool {
	return s.SchoolID != "" || s.SchoolText != ""
}

// SubmitReady evaluates the submit-readiness gate: organization resolved,
// consent confirmed, and no fields flagged invalid by the page itself.
func (s FormReadySnapshot) SubmitReady() bool {
	return s.SchoolResolved() && s.ConsentChecked && s.AriaInvalidCount == 0
}

// RunResult is the structured outcome of one orchestrator run. The run
// boundary converts every expected failure mode into one of these instead of
// propagating an error.
type RunResult struct {
	Success  bool
	Message  string
	Step     WorkflowStep
	Status   StatusPayload
	Snapshot *FormReadySnapshot
	Trace    string
}
