// File: internal/browser/document.go
// Description: DocumentContext backed by JS evaluation inside one document
// (the page itself or a same-origin frame). Located elements are tagged with
// a data-vf-loc token so later operations address them with a stable selector
// regardless of how they were found.

package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/veriform/veriform-cli/api/schemas"
	"github.com/veriform/veriform-cli/internal/pacing"
)

// jsHelpers is prepended to every script body. vis filters to rendered,
// non-hidden elements; setNative writes through the prototype value setter so
// framework-controlled inputs observe the change.
const jsHelpers = `
	var w = doc.defaultView || window;
	var vis = function(el) {
		if (!el) return false;
		var rects = el.getClientRects();
		if (!rects || rects.length === 0) return false;
		var st = w.getComputedStyle(el);
		return st.visibility !== 'hidden' && st.display !== 'none';
	};
	var setNative = function(el, v) {
		var proto = el.tagName === 'TEXTAREA' ? w.HTMLTextAreaElement.prototype : w.HTMLInputElement.prototype;
		var desc = Object.getOwnPropertyDescriptor(proto, 'value');
		if (desc && desc.set) { desc.set.call(el, v); } else { el.value = v; }
	};
`

// keyCodes maps the key chords the fill protocol uses to legacy keyCode
// values, which some component libraries still switch on.
var keyCodes = map[string]int{
	"Enter":     13,
	"Tab":       9,
	"Backspace": 8,
	"Escape":    27,
	"ArrowDown": 40,
	"ArrowUp":   38,
}

type docContext struct {
	page *Page
	root string
}

var _ schemas.DocumentContext = (*docContext)(nil)

func newDocContext(page *Page, root string) *docContext {
	return &docContext{page: page, root: root}
}

// eval runs a script body against this document's root and unmarshals the
// return value into out.
func (d *docContext) eval(ctx context.Context, body string, out interface{}) error {
	script := fmt.Sprintf("(function(doc){%s%s})(%s)", jsHelpers, body, d.root)
	return d.page.run(ctx, chromedp.Evaluate(script, out))
}

// evalOK runs a script returning a boolean and converts false into a
// not-found error for the given selector.
func (d *docContext) evalOK(ctx context.Context, selector, body string) error {
	var ok bool
	if err := d.eval(ctx, body, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no element matches %q", selector)
	}
	return nil
}

// jsStr safely embeds a Go string as a JS string literal.
func jsStr(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Locate resolves a strategy to the first visible match and returns a tagged
// selector for it.
func (d *docContext) Locate(ctx context.Context, strategy schemas.SelectorStrategy) (string, bool, error) {
	finder, err := finderJS(strategy)
	if err != nil {
		return "", false, err
	}
	token := uuid.NewString()
	body := fmt.Sprintf(`
		%s
		if (!el) return '';
		if (!el.hasAttribute('data-vf-loc')) { el.setAttribute('data-vf-loc', %s); }
		return '[data-vf-loc="' + el.getAttribute('data-vf-loc') + '"]';
	`, finder, jsStr(token))

	var selector string
	if err := d.eval(ctx, body, &selector); err != nil {
		return "", false, err
	}
	if selector == "" {
		return "", false, nil
	}
	return selector, true, nil
}

// finderJS produces a script fragment assigning the first visible match to el.
func finderJS(strategy schemas.SelectorStrategy) (string, error) {
	firstVisible := `
		var el = null;
		var list = doc.querySelectorAll(%s);
		for (var i = 0; i < list.length; i++) {
			if (vis(list[i])) { el = list[i]; break; }
		}
	`
	switch strategy.Kind {
	case schemas.ByContainer, schemas.ByAttribute:
		return fmt.Sprintf(firstVisible, jsStr(strategy.Query)), nil

	case schemas.ByID:
		return fmt.Sprintf(firstVisible, jsStr(fmt.Sprintf(`[id=%q]`, strategy.Query))), nil

	case schemas.ByRole:
		role, suffix := splitRoleQuery(strategy.Query)
		selectors := []string{fmt.Sprintf(`[role=%q]%s`, role, suffix)}
		if role == "combobox" {
			// Autocomplete inputs frequently carry the combobox contract
			// without the explicit role attribute.
			selectors = append(selectors,
				"input[aria-autocomplete]"+suffix,
				"input[aria-expanded]"+suffix,
			)
		}
		return fmt.Sprintf(firstVisible, jsStr(strings.Join(selectors, ", "))), nil

	case schemas.ByLabel:
		alts := strings.Split(strategy.Query, "|")
		lowered := make([]string, 0, len(alts))
		for _, a := range alts {
			if a = strings.TrimSpace(a); a != "" {
				lowered = append(lowered, strings.ToLower(a))
			}
		}
		altsJSON, _ := json.Marshal(lowered)
		return fmt.Sprintf(`
			var alts = %s;
			var match = function(t) {
				t = (t || '').trim().toLowerCase();
				if (!t) return false;
				for (var j = 0; j < alts.length; j++) {
					if (t.indexOf(alts[j]) !== -1) return true;
				}
				return false;
			};
			var el = null;
			var labels = doc.querySelectorAll('label');
			for (var i = 0; i < labels.length && !el; i++) {
				if (!match(labels[i].innerText)) continue;
				var c = labels[i].control;
				if (!c && labels[i].htmlFor) c = doc.getElementById(labels[i].htmlFor);
				if (!c) c = labels[i].querySelector('input, select, textarea');
				if (c && vis(c)) el = c;
			}
			if (!el) {
				var btns = doc.querySelectorAll('button, input[type="submit"], [role="button"]');
				for (var i = 0; i < btns.length && !el; i++) {
					if (match(btns[i].innerText || btns[i].value) && vis(btns[i])) el = btns[i];
				}
			}
		`, string(altsJSON)), nil

	default:
		return "", fmt.Errorf("unknown selector strategy %q", strategy.Kind)
	}
}

// splitRoleQuery separates the role name from an optional CSS suffix, e.g.
// `combobox:not([id*="language"])`.
func splitRoleQuery(query string) (role, suffix string) {
	for i, r := range query {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' {
			return query[:i], query[i:]
		}
	}
	return query, ""
}

func (d *docContext) Visible(ctx context.Context, selector string) (bool, error) {
	var visible bool
	body := fmt.Sprintf(`return vis(doc.querySelector(%s));`, jsStr(selector))
	if err := d.eval(ctx, body, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

func (d *docContext) Count(ctx context.Context, selector string) (int, error) {
	var count int
	body := fmt.Sprintf(`return doc.querySelectorAll(%s).length;`, jsStr(selector))
	if err := d.eval(ctx, body, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (d *docContext) Click(ctx context.Context, selector string) error {
	body := fmt.Sprintf(`
		var el = doc.querySelector(%s);
		if (!el) return false;
		el.scrollIntoView({block: 'center', inline: 'center'});
		el.click();
		return true;
	`, jsStr(selector))
	return d.evalOK(ctx, selector, body)
}

func (d *docContext) ClickPointer(ctx context.Context, selector string) error {
	body := fmt.Sprintf(`
		var el = doc.querySelector(%s);
		if (!el) return false;
		var r = el.getBoundingClientRect();
		var opts = {bubbles: true, cancelable: true, view: w,
			clientX: r.left + r.width / 2, clientY: r.top + r.height / 2, button: 0};
		var seq = ['pointerdown', 'mousedown', 'pointerup', 'mouseup', 'click'];
		for (var i = 0; i < seq.length; i++) {
			var t = seq[i];
			var ev = (t.indexOf('pointer') === 0 && w.PointerEvent)
				? new w.PointerEvent(t, opts)
				: new w.MouseEvent(t, opts);
			el.dispatchEvent(ev);
		}
		return true;
	`, jsStr(selector))
	return d.evalOK(ctx, selector, body)
}

func (d *docContext) Focus(ctx context.Context, selector string) error {
	body := fmt.Sprintf(`
		var el = doc.querySelector(%s);
		if (!el) return false;
		el.focus();
		return true;
	`, jsStr(selector))
	return d.evalOK(ctx, selector, body)
}

func (d *docContext) ClearInput(ctx context.Context, selector string) error {
	body := fmt.Sprintf(`
		var el = doc.querySelector(%s);
		if (!el) return false;
		el.focus();
		setNative(el, '');
		el.dispatchEvent(new w.Event('input', {bubbles: true}));
		return true;
	`, jsStr(selector))
	return d.evalOK(ctx, selector, body)
}

func (d *docContext) TypeText(ctx context.Context, selector, text string, perKey time.Duration) error {
	for _, r := range text {
		ch := string(r)
		body := fmt.Sprintf(`
			var el = doc.querySelector(%s);
			if (!el) return false;
			var ch = %s;
			el.dispatchEvent(new w.KeyboardEvent('keydown', {key: ch, bubbles: true, cancelable: true}));
			setNative(el, el.value + ch);
			el.dispatchEvent(new w.InputEvent('input', {data: ch, inputType: 'insertText', bubbles: true}));
			el.dispatchEvent(new w.KeyboardEvent('keyup', {key: ch, bubbles: true}));
			return true;
		`, jsStr(selector), jsStr(ch))
		if err := d.evalOK(ctx, selector, body); err != nil {
			return err
		}
		if perKey > 0 {
			if err := pacing.SleepFor(ctx, perKey); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *docContext) Press(ctx context.Context, key string) error {
	code := keyCodes[key]
	blur := ""
	if key == "Tab" {
		// Synthetic key events do not move focus; mirror the commit side
		// effect explicitly.
		blur = "if (el.blur) el.blur();"
	}
	body := fmt.Sprintf(`
		var el = doc.activeElement || doc.body;
		var init = {key: %s, keyCode: %d, which: %d, bubbles: true, cancelable: true};
		el.dispatchEvent(new w.KeyboardEvent('keydown', init));
		el.dispatchEvent(new w.KeyboardEvent('keyup', init));
		%s
		return true;
	`, jsStr(key), code, code, blur)
	var ok bool
	return d.eval(ctx, body, &ok)
}

// stringResult carries a value plus an existence flag across the JS boundary.
type stringResult struct {
	OK    bool   `json:"ok"`
	Value string `json:"v"`
}

func (d *docContext) Value(ctx context.Context, selector string) (string, error) {
	body := fmt.Sprintf(`
		var el = doc.querySelector(%s);
		return el ? {ok: true, v: String(el.value || '')} : {ok: false, v: ''};
	`, jsStr(selector))
	var res stringResult
	if err := d.eval(ctx, body, &res); err != nil {
		return "", err
	}
	if !res.OK {
		return "", fmt.Errorf("no element matches %q", selector)
	}
	return res.Value, nil
}

func (d *docContext) ForceValue(ctx context.Context, selector, value string) error {
	body := fmt.Sprintf(`
		var el = doc.querySelector(%s);
		if (!el) return false;
		setNative(el, %s);
		el.dispatchEvent(new w.Event('input', {bubbles: true}));
		el.dispatchEvent(new w.Event('change', {bubbles: true}));
		el.dispatchEvent(new w.FocusEvent('blur', {bubbles: true}));
		if (el.blur) el.blur();
		return true;
	`, jsStr(selector), jsStr(value))
	return d.evalOK(ctx, selector, body)
}

func (d *docContext) Text(ctx context.Context, selector string) (string, error) {
	body := fmt.Sprintf(`
		var el = doc.querySelector(%s);
		if (!el) return {ok: false, v: ''};
		return {ok: true, v: String(el.innerText || el.textContent || '').trim()};
	`, jsStr(selector))
	var res stringResult
	if err := d.eval(ctx, body, &res); err != nil {
		return "", err
	}
	if !res.OK {
		return "", fmt.Errorf("no element matches %q", selector)
	}
	return res.Value, nil
}

func (d *docContext) Attr(ctx context.Context, selector, name string) (string, bool, error) {
	body := fmt.Sprintf(`
		var el = doc.querySelector(%s);
		if (!el) return {ok: false, v: ''};
		var v = el.getAttribute(%s);
		return v === null ? {ok: false, v: ''} : {ok: true, v: v};
	`, jsStr(selector), jsStr(name))
	var res stringResult
	if err := d.eval(ctx, body, &res); err != nil {
		return "", false, err
	}
	return res.Value, res.OK, nil
}

type checkboxDTO struct {
	Selector string `json:"selector"`
	Name     string `json:"name"`
	Label    string `json:"label"`
	Checked  bool   `json:"checked"`
}

func (d *docContext) Checkboxes(ctx context.Context) ([]schemas.CheckboxState, error) {
	body := `
		var out = [];
		var boxes = doc.querySelectorAll('input[type="checkbox"]');
		for (var i = 0; i < boxes.length; i++) {
			var el = boxes[i];
			if (!el.hasAttribute('data-vf-loc')) {
				el.setAttribute('data-vf-loc', 'cb-' + i + '-' + Math.random().toString(36).slice(2, 8));
			}
			var label = '';
			if (el.id) {
				var l = doc.querySelector('label[for="' + el.id + '"]');
				if (l) label = l.innerText;
			}
			if (!label) {
				var pl = el.closest('label');
				if (pl) label = pl.innerText;
			}
			if (!label && el.parentElement) label = el.parentElement.innerText;
			out.push({
				selector: '[data-vf-loc="' + el.getAttribute('data-vf-loc') + '"]',
				name: el.name || '',
				label: String(label || '').trim(),
				checked: !!el.checked
			});
		}
		return out;
	`
	var dtos []checkboxDTO
	if err := d.eval(ctx, body, &dtos); err != nil {
		return nil, err
	}
	states := make([]schemas.CheckboxState, 0, len(dtos))
	for _, dto := range dtos {
		states = append(states, schemas.CheckboxState{
			Selector: dto.Selector,
			Name:     dto.Name,
			Label:    dto.Label,
			Checked:  dto.Checked,
		})
	}
	return states, nil
}
