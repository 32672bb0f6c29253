// File: internal/browser/page.go
// Description: One browser tab. Network idle detection follows the inflight
// request ledger pattern: a CDP event listener tracks requests in flight and
// idleness means a full quiet period with an empty ledger.

package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/api/schemas"
)

const minIdleTick = 50 * time.Millisecond

// Page is a single tab bound to the session's lifetime.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu        sync.RWMutex
	inflight  map[network.RequestID]struct{}
	closeOnce sync.Once
}

var _ schemas.Page = (*Page)(nil)

func newPage(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger) *Page {
	p := &Page{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.Named("page"),
		inflight: make(map[network.RequestID]struct{}),
	}
	chromedp.ListenTarget(ctx, p.handleEvent)
	return p
}

func (p *Page) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.mu.Lock()
		p.inflight[e.RequestID] = struct{}{}
		p.mu.Unlock()
	case *network.EventLoadingFinished:
		p.mu.Lock()
		delete(p.inflight, e.RequestID)
		p.mu.Unlock()
	case *network.EventLoadingFailed:
		p.mu.Lock()
		delete(p.inflight, e.RequestID)
		p.mu.Unlock()
	}
}

func (p *Page) inflightCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.inflight)
}

// run executes chromedp actions respecting both the tab lifetime and the
// caller's context.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads the URL and waits for the document body to be ready.
func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p.logger.Info("Navigating", zap.String("url", url))
	if err := p.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// WaitNetworkIdle blocks until no request has been in flight for quiet, or
// until max elapses. Exceeding max is not an error; callers treat idleness as
// best-effort stabilization.
func (p *Page) WaitNetworkIdle(ctx context.Context, quiet, max time.Duration) error {
	tick := quiet / 2
	if tick < minIdleTick {
		tick = minIdleTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	deadline := time.NewTimer(max)
	defer deadline.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.ctx.Done():
			return p.ctx.Err()
		case <-deadline.C:
			p.logger.Debug("Network idle budget exhausted",
				zap.Int("inflight", p.inflightCount()))
			return nil
		case <-ticker.C:
			if p.inflightCount() > 0 {
				lastActivity = time.Now()
			} else if time.Since(lastActivity) >= quiet {
				return nil
			}
		}
	}
}

// Documents returns the main document followed by every same-origin frame in
// document order. Cross-origin frames are skipped; their content cannot be
// reached from the page's JS context.
func (p *Page) Documents(ctx context.Context) ([]schemas.DocumentContext, error) {
	var accessible []int
	script := `(function() {
		var out = [];
		var frames = document.querySelectorAll('iframe');
		for (var i = 0; i < frames.length; i++) {
			try {
				if (frames[i].contentDocument) { out.push(i); }
			} catch (e) {}
		}
		return out;
	})()`
	if err := p.run(ctx, chromedp.Evaluate(script, &accessible)); err != nil {
		return nil, fmt.Errorf("frame enumeration failed: %w", err)
	}

	docs := []schemas.DocumentContext{p.MainDocument()}
	for _, idx := range accessible {
		root := fmt.Sprintf("document.querySelectorAll('iframe')[%d].contentDocument", idx)
		docs = append(docs, newDocContext(p, root))
	}
	return docs, nil
}

// MainDocument returns the top-level document context.
func (p *Page) MainDocument() schemas.DocumentContext {
	return newDocContext(p, "document")
}

// Screenshot captures the visible viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// Content returns the full serialized HTML of the page.
func (p *Page) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("content capture failed: %w", err)
	}
	return html, nil
}

// Close tears down the tab.
func (p *Page) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.cancel()
	})
	return nil
}
