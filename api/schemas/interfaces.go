// File: api/schemas/interfaces.go
// Description: Capability contracts consumed by the orchestration core. The
// browser, transport and diagnostics collaborators are injected through these
// interfaces, which keeps the core decoupled and testable with in-memory fakes.

package schemas

import (
	"context"
	"time"
)

// StrategyKind is the closed set of element-lookup strategies. Each field's
// fallback chain is an ordered list of these, evaluated with a uniform
// "first visible match wins" combinator.
type StrategyKind string

const (
	ByContainer StrategyKind = "container" // CSS path scoped to a known wrapper
	ByLabel     StrategyKind = "label"     // label-text association
	ByRole      StrategyKind = "role"      // ARIA role match
	ByID        StrategyKind = "id"        // stable element id
	ByAttribute StrategyKind = "attribute" // raw attribute/CSS selector
)

// SelectorStrategy is one entry in a field's ordered fallback chain.
type SelectorStrategy struct {
	Kind  StrategyKind `mapstructure:"kind" yaml:"kind"`
	Query string       `mapstructure:"query" yaml:"query"`
}

// CheckboxState describes one checkbox as rendered, with enough surrounding
// text to classify it (consent, marketing, ...).
type CheckboxState struct {
	Selector string
	Name     string
	Label    string
	Checked  bool
}

// DocumentContext is the main page or one nested frame, whichever currently
// hosts the form. Selectors returned by Locate remain valid only for the
// lifetime of the current navigation.
type DocumentContext interface {
	// Locate resolves a strategy to a concrete selector for the first visible
	// matching element. found is false when no visible element matches.
	Locate(ctx context.Context, strategy SelectorStrategy) (selector string, found bool, err error)
	Visible(ctx context.Context, selector string) (bool, error)
	Count(ctx context.Context, selector string) (int, error)

	Click(ctx context.Context, selector string) error
	// ClickPointer dispatches a synthetic pointer event sequence directly
	// against the node, bypassing visibility and animation waits.
	ClickPointer(ctx context.Context, selector string) error
	Focus(ctx context.Context, selector string) error
	ClearInput(ctx context.Context, selector string) error
	// TypeText types character by character with the given inter-keystroke delay.
	TypeText(ctx context.Context, selector, text string, perKey time.Duration) error
	// Press sends a page-level key chord ("ArrowDown", "Enter", "Tab", ...)
	// to the currently focused element.
	Press(ctx context.Context, key string) error

	Value(ctx context.Context, selector string) (string, error)
	// ForceValue assigns the underlying value directly and dispatches
	// input/change/blur notifications. Last-resort write path.
	ForceValue(ctx context.Context, selector, value string) error
	Text(ctx context.Context, selector string) (string, error)
	Attr(ctx context.Context, selector, name string) (value string, ok bool, err error)
	Checkboxes(ctx context.Context) ([]CheckboxState, error)
}

// Page is one browser tab.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// WaitNetworkIdle blocks until no network activity has been observed for
	// quiet, or until max elapses. Returning after max is not an error.
	WaitNetworkIdle(ctx context.Context, quiet, max time.Duration) error
	// Documents returns the main document followed by every nested frame in
	// document order.
	Documents(ctx context.Context) ([]DocumentContext, error)
	MainDocument() DocumentContext
	Screenshot(ctx context.Context) ([]byte, error)
	Content(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// Response is a minimal HTTP response surface for the API client.
type Response struct {
	Status int
	Body   []byte
}

// Transport issues HTTP requests through the browser session's network stack
// so that API calls share cookies and TLS state with the page.
type Transport interface {
	Fetch(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error)
}

// BrowserSession owns one browser instance for the lifetime of one run.
type BrowserSession interface {
	Ensure(ctx context.Context) error
	NewPage(ctx context.Context) (Page, error)
	Transport() Transport
	Close(ctx context.Context) error
}

// DiagnosticsSink captures best-effort page evidence (screenshot + HTML).
// Implementations must never fail the caller.
type DiagnosticsSink interface {
	DumpPage(ctx context.Context, page Page, label string)
}
