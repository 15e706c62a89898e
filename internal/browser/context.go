// internal/browser/context.go
package browser

import "context"

// combineContext derives a context from parentCtx that is additionally
// canceled when secondaryCtx is canceled. chromedp operations must run on a
// context derived from the page's chromedp context, but they still need to
// respect per-call deadlines supplied by callers.
func combineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
