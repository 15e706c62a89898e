// internal/runner/runner.go

// Package runner drives one browser page through a sequence of states and
// invokes the injected test callback in each of them. Three visiting
// strategies (script order, matrix combinations, button iteration) share
// one state-visit primitive.
package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
	"github.com/bobdodd/auto-a11y-go/internal/config"
	"github.com/bobdodd/auto-a11y-go/internal/executor"
	"github.com/bobdodd/auto-a11y-go/internal/validator"
)

// Runner orchestrates multi-state testing of single pages. One Runner may
// serve many pages sequentially; each Run* call owns its page exclusively
// for the duration.
type Runner struct {
	logger    *zap.Logger
	cfg       *config.Config
	exec      *executor.Executor
	validator *validator.Validator
	session   schemas.SessionManager
	callback  schemas.TestCallback

	// lifecycle is optional. Without it, scripts demanding a clean browser
	// are skipped and a dead connection cannot be recovered.
	lifecycle schemas.BrowserLifecycle
	envVars   map[string]string
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLifecycle enables browser-restart recovery and clean-state restarts.
func WithLifecycle(lc schemas.BrowserLifecycle) Option {
	return func(r *Runner) { r.lifecycle = lc }
}

// WithEnvVars supplies the substitution map for ${ENV:NAME} tokens in
// script step values.
func WithEnvVars(env map[string]string) Option {
	return func(r *Runner) { r.envVars = env }
}

// New creates a runner.
func New(logger *zap.Logger, cfg *config.Config, exec *executor.Executor, val *validator.Validator, session schemas.SessionManager, callback schemas.TestCallback, opts ...Option) *Runner {
	r := &Runner{
		logger:    logger.Named("runner"),
		cfg:       cfg,
		exec:      exec,
		validator: val,
		session:   session,
		callback:  callback,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// sessionID extracts the session identifier when the session manager
// exposes one; results are tagged with it for downstream grouping.
func (r *Runner) sessionID() string {
	if s, ok := r.session.(interface{ SessionID() string }); ok {
		return s.SessionID()
	}
	return ""
}

// run is the per-call state shared by the visiting strategies.
type run struct {
	r      *Runner
	logger *zap.Logger

	page   schemas.Page
	pageID string
	url    string

	results []*schemas.TestResult
	// pending holds violations observed since the last visited state; they
	// are merged into the next TestResult.
	pending  []schemas.Violation
	seq      int
	terminal bool
}

func (r *Runner) newRun(page schemas.Page, pageID, url string) *run {
	return &run{
		r:      r,
		logger: r.logger.With(zap.String("page_id", pageID), zap.String("url", url)),
		page:   page,
		pageID: pageID,
		url:    url,
	}
}

// testState invokes the callback once for the current page state and
// decorates the result with orchestration metadata. A callback error is
// terminal for the run: a minimal error-tagged result is appended and no
// further states are attempted.
func (t *run) testState(ctx context.Context, state *schemas.PageTestState) {
	if t.terminal {
		return
	}

	result, err := t.r.callback(ctx, t.page, t.pageID)
	if err != nil {
		t.logger.Error("Test callback failed, run is terminal.",
			zap.Int("state_sequence", t.seq), zap.Error(err))
		result = &schemas.TestResult{
			PageID: t.pageID,
			URL:    t.url,
			Error:  err.Error(),
		}
		t.terminal = true
	}
	if result == nil {
		result = &schemas.TestResult{PageID: t.pageID, URL: t.url}
	}

	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	if result.URL == "" {
		result.URL = t.url
	}
	if result.ObservedAt.IsZero() {
		result.ObservedAt = time.Now()
	}
	result.PageState = state
	result.StateSequence = t.seq
	result.SessionID = t.r.sessionID()

	if len(t.pending) > 0 {
		result.Violations = append(result.Violations, t.pending...)
		t.pending = nil
	}

	t.results = append(t.results, result)
	t.seq++
}

// addViolations queues violations for the next visited state.
func (t *run) addViolations(vs ...schemas.Violation) {
	t.pending = append(t.pending, vs...)
}

// linkRelated cross-links every result with the ids of its siblings so a
// reporter can present them as one multi-state test.
func (t *run) linkRelated() {
	for _, res := range t.results {
		related := make([]string, 0, len(t.results)-1)
		for _, other := range t.results {
			if other.ID != res.ID {
				related = append(related, other.ID)
			}
		}
		res.RelatedResultIDs = related
	}
}

// ensureAlive probes the browser connection and attempts recovery through
// the lifecycle manager. It reports whether the run still has a usable
// page: false means the browser is gone for good.
func (t *run) ensureAlive(ctx context.Context) bool {
	if t.page.Alive(ctx) {
		return true
	}
	t.logger.Warn("Browser connection lost.")
	return t.restart(ctx)
}

// restart replaces the run's page via the lifecycle manager and reloads
// the page under test. Returns false when recovery is impossible.
func (t *run) restart(ctx context.Context) bool {
	if t.r.lifecycle == nil {
		t.logger.Warn("No browser lifecycle manager; cannot recover.")
		return false
	}

	page, outcome := t.r.lifecycle.Restart(ctx)
	if outcome.Status != schemas.RestartRecovered {
		t.logger.Error("Browser restart unrecoverable.",
			zap.Int("attempts", outcome.Attempts), zap.Error(outcome.Err))
		return false
	}
	t.logger.Info("Browser restarted.", zap.Int("attempts", outcome.Attempts))

	t.page = page
	if err := t.page.Navigate(ctx, t.url); err != nil {
		t.logger.Error("Navigation after restart failed.", zap.Error(err))
		return false
	}
	return true
}

// settle pauses briefly so the page can react to an interaction before the
// next probe or test.
func (t *run) settle(ctx context.Context) {
	select {
	case <-time.After(t.r.cfg.Runner.SettleDelay):
	case <-ctx.Done():
	}
}
