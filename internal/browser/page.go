// internal/browser/page.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
	"github.com/bobdodd/auto-a11y-go/internal/config"
)

// Page is a single browser tab implementing the schemas.Page driver surface.
// A page is exclusively owned by one runner for the duration of a run.
type Page struct {
	id     string
	logger *zap.Logger
	cfg    *config.Config

	ctx    context.Context
	cancel context.CancelFunc

	tracker *networkTracker
	loadCh  chan struct{}
}

var _ schemas.Page = (*Page)(nil)

func newPage(allocCtx context.Context, logger *zap.Logger, cfg *config.Config) (*Page, error) {
	id := uuid.New().String()
	ctx, cancel := chromedp.NewContext(allocCtx)

	p := &Page{
		id:      id,
		logger:  logger.Named("page").With(zap.String("page_session", id[:8])),
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		tracker: newNetworkTracker(),
		loadCh:  make(chan struct{}, 1),
	}

	p.tracker.attach(ctx)
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if _, ok := ev.(*cdppage.EventLoadEventFired); ok {
			select {
			case p.loadCh <- struct{}{}:
			default:
			}
		}
	})

	if err := chromedp.Run(ctx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if cfg.Browser.DisableCache {
				return network.SetCacheDisabled(true).Do(ctx)
			}
			return nil
		}),
	); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize page session: %w", err)
	}

	p.logger.Debug("Page session created.")
	return p, nil
}

// ID returns the page session identifier.
func (p *Page) ID() string {
	return p.id
}

// run executes chromedp actions on the page context while respecting the
// caller's deadline.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads a URL and waits for the document body to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating", zap.String("url", url))
	p.tracker.reset()

	navCtx, cancel := context.WithTimeout(ctx, p.cfg.Network.NavigationTimeout)
	defer cancel()

	if err := p.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(p.cfg.Network.PostLoadWait),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// resolveUnique verifies the selector resolves to exactly one live element.
func (p *Page) resolveUnique(ctx context.Context, selector string) error {
	js := fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector))
	var count int
	if err := p.run(ctx, chromedp.Evaluate(js, &count)); err != nil {
		return fmt.Errorf("failed to resolve selector %q: %w", selector, err)
	}
	switch {
	case count == 0:
		return fmt.Errorf("no element matches selector %q", selector)
	case count > 1:
		return fmt.Errorf("selector %q matches %d elements, expected exactly one", selector, count)
	}
	return nil
}

// Click clicks the single element matching the selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.resolveUnique(ctx, selector); err != nil {
		return err
	}
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// Type clears the target field and enters the given text.
func (p *Page) Type(ctx context.Context, selector, text string) error {
	if err := p.resolveUnique(ctx, selector); err != nil {
		return err
	}
	return p.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

// SelectOption picks an option by value in a <select> element and fires the
// change event the page's scripts listen for.
func (p *Page) SelectOption(ctx context.Context, selector, value string) error {
	if err := p.resolveUnique(ctx, selector); err != nil {
		return err
	}
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		const match = Array.from(el.options || []).some(o => o.value === %s);
		if (!match) { return false; }
		el.value = %s;
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, jsString(selector), jsString(value), jsString(value))

	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(js, &ok)); err != nil {
		return fmt.Errorf("select on %q failed: %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("option with value %q not found in %q", value, selector)
	}
	return nil
}

// Hover dispatches mouseover events on the target element.
func (p *Page) Hover(ctx context.Context, selector string) error {
	if err := p.resolveUnique(ctx, selector); err != nil {
		return err
	}
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		for (const type of ['mouseenter', 'mouseover']) {
			el.dispatchEvent(new MouseEvent(type, {bubbles: true, cancelable: true}));
		}
		return true;
	})()`, jsString(selector))

	var ok bool
	return p.run(ctx, chromedp.Evaluate(js, &ok))
}

// ScrollIntoView scrolls the target element into the viewport.
func (p *Page) ScrollIntoView(ctx context.Context, selector string) error {
	if err := p.resolveUnique(ctx, selector); err != nil {
		return err
	}
	return p.run(ctx, chromedp.ScrollIntoView(selector, chromedp.ByQuery))
}

// WaitVisible blocks until the selector is visible or the timeout elapses.
func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("timed out waiting for %q to become visible: %w", selector, err)
	}
	return nil
}

// WaitForNavigation blocks until the next load event fires.
func (p *Page) WaitForNavigation(ctx context.Context, timeout time.Duration) error {
	// Drain a load event from a navigation that already completed.
	select {
	case <-p.loadCh:
		return nil
	default:
	}

	select {
	case <-p.loadCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out after %s waiting for navigation", timeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// WaitNetworkIdle blocks until the network has been quiet for the configured
// period or the timeout elapses.
func (p *Page) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	idleCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	if err := p.tracker.waitIdle(idleCtx, p.cfg.Network.IdleQuietPeriod, timeout); err != nil {
		return fmt.Errorf("network did not become idle within %s: %w", timeout, err)
	}
	return nil
}

// Exists reports whether the selector matches at least one element.
func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	js := fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector))
	var found bool
	if err := p.run(ctx, chromedp.Evaluate(js, &found)); err != nil {
		return false, fmt.Errorf("existence check for %q failed: %w", selector, err)
	}
	return found, nil
}

// Visibility reports existence and CSS visibility for the first element
// matching the selector. Visible means: in the DOM, display not none,
// visibility not hidden, non-zero opacity, and owning a layout box.
func (p *Page) Visibility(ctx context.Context, selector string) (schemas.VisibilityStatus, error) {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { return {found: false, visible: false}; }
		const style = window.getComputedStyle(el);
		const visible = style.display !== 'none' &&
			style.visibility !== 'hidden' &&
			parseFloat(style.opacity) > 0 &&
			el.getClientRects().length > 0;
		return {found: true, visible: visible};
	})()`, jsString(selector))

	var status schemas.VisibilityStatus
	if err := p.run(ctx, chromedp.Evaluate(js, &status)); err != nil {
		return schemas.VisibilityStatus{}, fmt.Errorf("visibility probe for %q failed: %w", selector, err)
	}
	return status, nil
}

// Content returns the serialized document.
func (p *Page) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture page content: %w", err)
	}
	return html, nil
}

// Title returns the document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read page title: %w", err)
	}
	return title, nil
}

// Screenshot captures the current viewport as PNG bytes.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return buf, nil
}

// Alive probes the browser connection with a trivial evaluation under a
// short deadline.
func (p *Page) Alive(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var one int
	if err := p.run(probeCtx, chromedp.Evaluate("1", &one)); err != nil {
		p.logger.Debug("Liveness probe failed.", zap.Error(err))
		return false
	}
	return one == 1
}

// Close releases the tab.
func (p *Page) Close(ctx context.Context) error {
	p.cancel()
	p.logger.Debug("Page session closed.")
	return nil
}

// jsString embeds a Go string into a JS expression as a quoted literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
