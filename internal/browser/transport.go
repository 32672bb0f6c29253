// File: internal/browser/transport.go
// Description: HTTP transport that issues requests from inside the page's JS
// context. API calls made through it share cookies, TLS state and origin with
// the page, which is what the verification endpoints expect.

package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/api/schemas"
)

type fetchTransport struct {
	session *Session
	logger  *zap.Logger

	mu     sync.RWMutex
	tabCtx context.Context
}

var _ schemas.Transport = (*fetchTransport)(nil)

func newFetchTransport(session *Session, logger *zap.Logger) *fetchTransport {
	return &fetchTransport{session: session, logger: logger.Named("transport")}
}

// bind points the transport at a tab. Called whenever a new page opens; the
// most recent page carries the origin the API calls must come from.
func (t *fetchTransport) bind(tabCtx context.Context) {
	t.mu.Lock()
	t.tabCtx = tabCtx
	t.mu.Unlock()
}

type fetchResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// Fetch executes the request via the page's fetch() with credentials included
// and returns the status plus raw body bytes.
func (t *fetchTransport) Fetch(ctx context.Context, method, url string, headers map[string]string, body []byte) (*schemas.Response, error) {
	t.mu.RLock()
	tabCtx := t.tabCtx
	t.mu.RUnlock()
	if tabCtx == nil {
		return nil, fmt.Errorf("transport not bound to a page")
	}

	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("could not encode request headers: %w", err)
	}

	bodyExpr := "undefined"
	if len(body) > 0 {
		bodyExpr = fmt.Sprintf(
			`Uint8Array.from(atob(%s), function(c) { return c.charCodeAt(0); })`,
			jsStr(base64.StdEncoding.EncodeToString(body)),
		)
	}

	script := fmt.Sprintf(`(async function() {
		const resp = await fetch(%s, {
			method: %s,
			headers: %s,
			body: %s,
			credentials: 'include',
			redirect: 'follow'
		});
		const buf = new Uint8Array(await resp.arrayBuffer());
		let bin = '';
		for (let i = 0; i < buf.length; i++) { bin += String.fromCharCode(buf[i]); }
		return {status: resp.status, body: btoa(bin)};
	})()`, jsStr(url), jsStr(method), string(headersJSON), bodyExpr)

	runCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()

	var res fetchResult
	err = chromedp.Run(runCtx, chromedp.Evaluate(script, &res,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
	if err != nil {
		return nil, fmt.Errorf("in-page fetch failed: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(res.Body)
	if err != nil {
		return nil, fmt.Errorf("could not decode response body: %w", err)
	}

	t.logger.Debug("In-page fetch complete",
		zap.String("method", method), zap.String("url", url), zap.Int("status", res.Status))
	return &schemas.Response{Status: res.Status, Body: raw}, nil
}
