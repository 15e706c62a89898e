// api/schemas/interfaces.go
package schemas

import (
	"context"
	"time"
)

// VisibilityStatus is the answer of a DOM visibility probe for one selector.
type VisibilityStatus struct {
	Found   bool
	Visible bool
}

// Page is the browser-driver surface the orchestration core requires.
// The core is driver-agnostic: any implementation exposing these primitives
// can be driven through multi-state tests. All blocking operations take a
// context and suspend until the browser responds or the deadline elapses.
type Page interface {
	// Navigate loads a URL and waits for the document to become ready.
	Navigate(ctx context.Context, url string) error

	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	SelectOption(ctx context.Context, selector, value string) error
	Hover(ctx context.Context, selector string) error
	ScrollIntoView(ctx context.Context, selector string) error

	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	WaitForNavigation(ctx context.Context, timeout time.Duration) error
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error

	// Exists reports whether the selector resolves to at least one element.
	Exists(ctx context.Context, selector string) (bool, error)
	// Visibility reports existence and CSS visibility for a selector.
	Visibility(ctx context.Context, selector string) (VisibilityStatus, error)

	Content(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)

	// Alive is a lightweight liveness probe of the browser connection.
	Alive(ctx context.Context) bool

	Close(ctx context.Context) error
}

// TestCallback is the injected accessibility check, invoked once per visited
// state. Its internal rule logic is entirely outside the orchestration core.
type TestCallback func(ctx context.Context, page Page, pageID string) (*TestResult, error)

// SessionManager owns idempotency and trigger-type policy across the pages
// of one test session. The core only consults it; it never decides trigger
// policy itself.
type SessionManager interface {
	// ShouldExecute decides whether the script should run at all on this
	// page, given its trigger and what has already run this session.
	ShouldExecute(ctx context.Context, script *Script, pageID string) (bool, string)

	// CheckConditionViolation reports a regression when a condition a
	// script previously handled is currently met again. Returns nil when
	// there is nothing to report.
	CheckConditionViolation(ctx context.Context, script *Script, pageID string, conditionMet bool) *Violation

	// MarkExecuted records an execution attempt for future trigger
	// decisions.
	MarkExecuted(ctx context.Context, scriptID, pageID string, success bool, duration time.Duration)
}

// BrowserLifecycle recovers the browser process. Restart discards the old
// page and hands ownership of a freshly created one to the caller; the
// outcome tells the caller whether continuing makes sense.
type BrowserLifecycle interface {
	Restart(ctx context.Context) (Page, RestartOutcome)
}
