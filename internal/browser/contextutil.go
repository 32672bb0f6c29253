// File: internal/browser/contextutil.go
package browser

import (
	"context"
	"time"
)

// CombineContext creates a new context derived from ctx1 (the session context)
// that is canceled when either ctx1 or ctx2 (the operational context) is
// canceled. It inherits values from ctx1, which is what carries the CDP
// connection info; ctx2 usually carries the per-operation deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

// valueOnlyContext wraps a parent context to create a "detached" context. It
// inherits all values (like CDP target information) from its parent but
// ignores the parent's deadline and cancellation signal.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }

func (valueOnlyContext) Done() <-chan struct{} { return nil }

func (valueOnlyContext) Err() error { return nil }

// Detach returns a context that inherits values from ctx but is not canceled
// when ctx is. Needed for cleanup work that must outlive the operation that
// triggered it, since the chromedp context carries connection information.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
