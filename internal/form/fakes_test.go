// File: internal/form/fakes_test.go
package form

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/veriform/veriform-cli/api/schemas"
)

// fakeNode is one element in the in-memory document.
type fakeNode struct {
	visible  bool
	value    string
	text     string
	attrs    map[string]string
	checkbox bool
	checked  bool
	name     string
	label    string
}

// fakeDoc is an in-memory DocumentContext with a call log. Tests script DOM
// reactions (menu appearing after typing, async identifier binding) through
// the react hook, which fires after every recorded operation.
type fakeDoc struct {
	nodes    map[string]*fakeNode
	locators map[schemas.SelectorStrategy]string
	calls    []string
	react    func(d *fakeDoc, op, sel string)
}

func newFakeDoc() *fakeDoc {
	return &fakeDoc{
		nodes:    make(map[string]*fakeNode),
		locators: make(map[schemas.SelectorStrategy]string),
	}
}

func (d *fakeDoc) record(op, sel string) {
	d.calls = append(d.calls, op+":"+sel)
	if d.react != nil {
		d.react(d, op, sel)
	}
}

func (d *fakeDoc) callCount(prefix string) int {
	n := 0
	for _, c := range d.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// callIndex returns the position of the first call with the prefix, or -1.
func (d *fakeDoc) callIndex(prefix string) int {
	for i, c := range d.calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func (d *fakeDoc) Locate(ctx context.Context, strategy schemas.SelectorStrategy) (string, bool, error) {
	d.record("locate", string(strategy.Kind)+"="+strategy.Query)
	target, ok := d.locators[strategy]
	if !ok {
		return "", false, nil
	}
	if n := d.nodes[target]; n == nil || !n.visible {
		return "", false, nil
	}
	return target, true, nil
}

func (d *fakeDoc) Visible(ctx context.Context, sel string) (bool, error) {
	n := d.nodes[sel]
	return n != nil && n.visible, nil
}

func (d *fakeDoc) Count(ctx context.Context, sel string) (int, error) {
	if _, ok := d.nodes[sel]; ok {
		return 1, nil
	}
	return 0, nil
}

func (d *fakeDoc) Click(ctx context.Context, sel string) error {
	d.record("click", sel)
	if n := d.nodes[sel]; n != nil && n.checkbox {
		n.checked = true
	}
	return nil
}

func (d *fakeDoc) ClickPointer(ctx context.Context, sel string) error {
	d.record("pointer", sel)
	return nil
}

func (d *fakeDoc) Focus(ctx context.Context, sel string) error {
	d.record("focus", sel)
	return nil
}

func (d *fakeDoc) ClearInput(ctx context.Context, sel string) error {
	d.record("clear", sel)
	if n := d.nodes[sel]; n != nil {
		n.value = ""
	}
	return nil
}

func (d *fakeDoc) TypeText(ctx context.Context, sel, text string, perKey time.Duration) error {
	d.record("type", sel+"="+text)
	if n := d.nodes[sel]; n != nil {
		n.value = text
	}
	return nil
}

func (d *fakeDoc) Press(ctx context.Context, key string) error {
	d.record("press", key)
	return nil
}

func (d *fakeDoc) Value(ctx context.Context, sel string) (string, error) {
	if n := d.nodes[sel]; n != nil {
		return n.value, nil
	}
	return "", nil
}

func (d *fakeDoc) ForceValue(ctx context.Context, sel, value string) error {
	d.record("force", sel+"="+value)
	n := d.nodes[sel]
	if n == nil {
		n = &fakeNode{}
		d.nodes[sel] = n
	}
	n.value = value
	return nil
}

func (d *fakeDoc) Text(ctx context.Context, sel string) (string, error) {
	if n := d.nodes[sel]; n != nil {
		return n.text, nil
	}
	return "", nil
}

func (d *fakeDoc) Attr(ctx context.Context, sel, name string) (string, bool, error) {
	if n := d.nodes[sel]; n != nil && n.attrs != nil {
		v, ok := n.attrs[name]
		return v, ok, nil
	}
	return "", false, nil
}

func (d *fakeDoc) Checkboxes(ctx context.Context) ([]schemas.CheckboxState, error) {
	selectors := make([]string, 0, len(d.nodes))
	for sel, n := range d.nodes {
		if n.checkbox && n.visible {
			selectors = append(selectors, sel)
		}
	}
	sort.Strings(selectors)
	boxes := make([]schemas.CheckboxState, 0, len(selectors))
	for _, sel := range selectors {
		n := d.nodes[sel]
		boxes = append(boxes, schemas.CheckboxState{
			Selector: sel,
			Name:     n.name,
			Label:    n.label,
			Checked:  n.checked,
		})
	}
	return boxes, nil
}

// fakePage serves canned document contexts.
type fakePage struct {
	docs []schemas.DocumentContext
	main schemas.DocumentContext
}

func (p *fakePage) Navigate(ctx context.Context, url string, timeout time.Duration) error { return nil }
func (p *fakePage) WaitNetworkIdle(ctx context.Context, quiet, max time.Duration) error  { return nil }
func (p *fakePage) Documents(ctx context.Context) ([]schemas.DocumentContext, error) {
	return p.docs, nil
}
func (p *fakePage) MainDocument() schemas.DocumentContext            { return p.main }
func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error)   { return nil, nil }
func (p *fakePage) Content(ctx context.Context) (string, error)      { return "", nil }
func (p *fakePage) Close(ctx context.Context) error                  { return nil }
