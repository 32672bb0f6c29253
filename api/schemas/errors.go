// File: api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
)

// ErrSingleUse is returned when Run is invoked a second time on an
// orchestrator instance. This is a programming error and is the only failure
// the orchestrator surfaces as an error rather than a RunResult.
var ErrSingleUse = errors.New("orchestrator instance is single-use; second run refused")

// TransportError wraps a network or timeout failure on an API call or
// navigation.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ElementNotFoundError means resolution exhausted every candidate strategy
// for a field. Non-fatal for simple fields, fatal for form-context location.
type ElementNotFoundError struct {
	Field string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("no visible element found for field %q", e.Field)
}

// SelectionUnconfirmedError records that the organization selection protocol
// exhausted all terms and rounds without confirmation. It is carried as
// diagnostic evidence, not raised through the call chain.
type SelectionUnconfirmedError struct {
	Organization string
	TermsTried   int
}

func (e *SelectionUnconfirmedError) Error() string {
	return fmt.Sprintf("organization %q not confirmed after %d search terms", e.Organization, e.TermsTried)
}

// SubmitGateFailedError aborts a run before any submission side effect and
// carries the snapshot that failed the gate.
type SubmitGateFailedError struct {
	Snapshot FormReadySnapshot
}

func (e *SubmitGateFailedError) Error() string {
	return fmt.Sprintf("submit gate failed: school_resolved=%t consent=%t invalid_fields=%d",
		e.Snapshot.SchoolResolved(), e.Snapshot.ConsentChecked, e.Snapshot.AriaInvalidCount)
}

// WorkflowError means the remote service reported the error step, before or
// after submission.
type WorkflowError struct {
	Step   WorkflowStep
	Status StatusPayload
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("remote workflow reported step %q", e.Step)
}
