// internal/executor/executor.go

// Package executor runs operator-authored setup scripts against a live
// browser page, step by step, and evaluates their validation rules.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
	"github.com/bobdodd/auto-a11y-go/internal/config"
)

// envToken matches ${ENV:NAME} placeholders in step values.
var envToken = regexp.MustCompile(`\$\{ENV:([A-Za-z_][A-Za-z0-9_]*)\}`)

// fileNameSanitizer strips characters unsafe for screenshot file names.
var fileNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// stepHandler executes one resolved step. The value argument already has
// environment tokens substituted.
type stepHandler func(ctx context.Context, page schemas.Page, step schemas.ScriptStep, value string, timeout time.Duration) error

// Executor runs scripts against pages. It is stateless across scripts and
// safe to share between runners as long as each call gets its own page.
type Executor struct {
	logger    *zap.Logger
	cfg       *config.Config
	lookupEnv func(string) (string, bool)
	handlers  map[schemas.ActionType]stepHandler
}

// Option customizes an Executor.
type Option func(*Executor)

// WithEnvLookup replaces the process-environment fallback used for
// ${ENV:NAME} substitution. Tests use this to avoid mutating the real
// environment.
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(e *Executor) {
		e.lookupEnv = lookup
	}
}

// New creates a script executor.
func New(logger *zap.Logger, cfg *config.Config, opts ...Option) *Executor {
	e := &Executor{
		logger:    logger.Named("executor"),
		cfg:       cfg,
		lookupEnv: os.LookupEnv,
	}
	e.handlers = map[schemas.ActionType]stepHandler{
		schemas.ActionClick:              e.doClick,
		schemas.ActionTypeText:           e.doType,
		schemas.ActionWait:               e.doWait,
		schemas.ActionWaitForSelector:    e.doWaitForSelector,
		schemas.ActionWaitForNavigation:  e.doWaitForNavigation,
		schemas.ActionWaitForNetworkIdle: e.doWaitForNetworkIdle,
		schemas.ActionScroll:             e.doScroll,
		schemas.ActionSelect:             e.doSelect,
		schemas.ActionHover:              e.doHover,
		schemas.ActionScreenshot:         nil, // handled inline, needs script context
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every step of the script in order, fail-fast, then evaluates
// the script's validation rules. Expected failures (selector misses,
// timeouts, validation mismatches) are recorded in the outcome with
// Success=false; the returned error is non-nil only for unexpected
// conditions such as context cancellation, where continuing the run makes
// no sense.
func (e *Executor) Execute(ctx context.Context, page schemas.Page, script *schemas.Script, envVars map[string]string) (*schemas.ExecutionOutcome, error) {
	log := e.logger.With(zap.String("script_id", script.ID), zap.String("script", script.Name))
	log.Info("Executing script.", zap.Int("steps", len(script.Steps)))

	start := time.Now()
	outcome := &schemas.ExecutionOutcome{
		ScriptID:   script.ID,
		ScriptName: script.Name,
	}

	for _, step := range script.Steps {
		entry, err := e.executeStep(ctx, page, script, step, envVars)
		outcome.Log = append(outcome.Log, entry)
		if entry.Success {
			outcome.StepsExecuted++
		}

		if err != nil {
			e.captureDebug(ctx, page, script.Name, step.StepNumber, "error")
			outcome.Error = fmt.Sprintf("step %d (%s) failed: %v", step.StepNumber, step.Action, err)
			outcome.DurationMs = time.Since(start).Milliseconds()
			log.Warn("Script step failed, aborting remaining steps.",
				zap.Int("step", step.StepNumber), zap.Error(err))

			if ctxErr := ctx.Err(); ctxErr != nil {
				return outcome, ctxErr
			}
			return outcome, nil
		}
	}

	if script.Validation != nil {
		if err := e.evaluateValidation(ctx, page, script.Validation); err != nil {
			outcome.Error = fmt.Sprintf("validation failed: %v", err)
			outcome.DurationMs = time.Since(start).Milliseconds()
			log.Warn("Script validation failed.", zap.Error(err))

			if ctxErr := ctx.Err(); ctxErr != nil {
				return outcome, ctxErr
			}
			return outcome, nil
		}
	}

	outcome.Success = true
	outcome.DurationMs = time.Since(start).Milliseconds()
	log.Info("Script executed successfully.",
		zap.Int("steps_executed", outcome.StepsExecuted),
		zap.Int64("duration_ms", outcome.DurationMs))
	return outcome, nil
}

// executeStep dispatches one step and records its log entry.
func (e *Executor) executeStep(ctx context.Context, page schemas.Page, script *schemas.Script, step schemas.ScriptStep, envVars map[string]string) (schemas.StepLogEntry, error) {
	entry := schemas.StepLogEntry{
		StepNumber: step.StepNumber,
		Action:     step.Action,
		Selector:   step.Selector,
		StartedAt:  time.Now(),
	}

	value := e.substituteEnv(step.Value, envVars)
	timeout := e.stepTimeout(step)

	var err error
	if step.Action == schemas.ActionScreenshot {
		err = e.capture(ctx, page, script.Name, step.StepNumber, "success")
	} else if handler, ok := e.handlers[step.Action]; ok && handler != nil {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		err = handler(stepCtx, page, step, value, timeout)
		cancel()
	} else {
		err = fmt.Errorf("unknown action type %q", step.Action)
	}

	entry.DurationMs = time.Since(entry.StartedAt).Milliseconds()
	if err != nil {
		entry.Error = err.Error()
		return entry, err
	}
	entry.Success = true

	if step.WaitAfterMs > 0 {
		select {
		case <-time.After(time.Duration(step.WaitAfterMs) * time.Millisecond):
		case <-ctx.Done():
			entry.Success = false
			entry.Error = ctx.Err().Error()
			return entry, ctx.Err()
		}
	}
	if step.ScreenshotAfter {
		_ = e.capture(ctx, page, script.Name, step.StepNumber, "success")
	}
	return entry, nil
}

// substituteEnv resolves ${ENV:NAME} tokens: explicit map first, process
// environment second, empty string when neither defines the variable.
// Credentials stay out of persisted scripts this way.
func (e *Executor) substituteEnv(value string, envVars map[string]string) string {
	if value == "" || !strings.Contains(value, "${ENV:") {
		return value
	}
	return envToken.ReplaceAllStringFunc(value, func(token string) string {
		name := envToken.FindStringSubmatch(token)[1]
		if v, ok := envVars[name]; ok {
			return v
		}
		if v, ok := e.lookupEnv(name); ok {
			return v
		}
		e.logger.Warn("Environment variable not set, substituting empty string.",
			zap.String("variable", name))
		return ""
	})
}

func (e *Executor) stepTimeout(step schemas.ScriptStep) time.Duration {
	if step.TimeoutMs > 0 {
		return time.Duration(step.TimeoutMs) * time.Millisecond
	}
	return e.cfg.Executor.DefaultStepTimeout
}

func (e *Executor) doClick(ctx context.Context, page schemas.Page, step schemas.ScriptStep, _ string, _ time.Duration) error {
	return page.Click(ctx, step.Selector)
}

func (e *Executor) doType(ctx context.Context, page schemas.Page, step schemas.ScriptStep, value string, _ time.Duration) error {
	return page.Type(ctx, step.Selector, value)
}

// doWait sleeps for the step's value in milliseconds, or the step timeout
// when no value is given.
func (e *Executor) doWait(ctx context.Context, _ schemas.Page, step schemas.ScriptStep, value string, timeout time.Duration) error {
	d := timeout
	if value != "" {
		ms, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("wait step has non-numeric value %q: %w", value, err)
		}
		d = time.Duration(ms) * time.Millisecond
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) doWaitForSelector(ctx context.Context, page schemas.Page, step schemas.ScriptStep, _ string, timeout time.Duration) error {
	return page.WaitVisible(ctx, step.Selector, timeout)
}

func (e *Executor) doWaitForNavigation(ctx context.Context, page schemas.Page, _ schemas.ScriptStep, _ string, timeout time.Duration) error {
	return page.WaitForNavigation(ctx, timeout)
}

func (e *Executor) doWaitForNetworkIdle(ctx context.Context, page schemas.Page, _ schemas.ScriptStep, _ string, timeout time.Duration) error {
	return page.WaitNetworkIdle(ctx, timeout)
}

func (e *Executor) doScroll(ctx context.Context, page schemas.Page, step schemas.ScriptStep, _ string, _ time.Duration) error {
	return page.ScrollIntoView(ctx, step.Selector)
}

func (e *Executor) doSelect(ctx context.Context, page schemas.Page, step schemas.ScriptStep, value string, _ time.Duration) error {
	return page.SelectOption(ctx, step.Selector, value)
}

func (e *Executor) doHover(ctx context.Context, page schemas.Page, step schemas.ScriptStep, _ string, _ time.Duration) error {
	return page.Hover(ctx, step.Selector)
}

// evaluateValidation applies the script's post-execution checks. Any
// failure-selector match is fatal, a configured success selector must
// resolve, and configured success text must appear in the page content.
func (e *Executor) evaluateValidation(ctx context.Context, page schemas.Page, v *schemas.ScriptValidation) error {
	for _, sel := range v.FailureSelectors {
		found, err := page.Exists(ctx, sel)
		if err != nil {
			return fmt.Errorf("failure-selector check for %q errored: %w", sel, err)
		}
		if found {
			return fmt.Errorf("failure selector %q matched", sel)
		}
	}

	if v.SuccessSelector != "" {
		found, err := page.Exists(ctx, v.SuccessSelector)
		if err != nil {
			return fmt.Errorf("success-selector check for %q errored: %w", v.SuccessSelector, err)
		}
		if !found {
			return fmt.Errorf("success selector %q did not resolve", v.SuccessSelector)
		}
	}

	if v.SuccessText != "" {
		content, err := page.Content(ctx)
		if err != nil {
			return fmt.Errorf("failed to read page content for success-text check: %w", err)
		}
		if !strings.Contains(content, v.SuccessText) {
			return fmt.Errorf("success text %q not found in page content", v.SuccessText)
		}
	}
	return nil
}

// captureDebug writes a diagnostic screenshot when debug capture is enabled.
// Best-effort: failures are logged but never mask the step error that
// triggered the capture.
func (e *Executor) captureDebug(ctx context.Context, page schemas.Page, scriptName string, stepNumber int, outcome string) {
	if !e.cfg.Executor.DebugScreenshots {
		return
	}
	_ = e.capture(ctx, page, scriptName, stepNumber, outcome)
}

// capture writes a screenshot regardless of the debug flag, used for
// explicit screenshot steps.
func (e *Executor) capture(ctx context.Context, page schemas.Page, scriptName string, stepNumber int, outcome string) error {
	buf, err := page.Screenshot(ctx)
	if err != nil {
		e.logger.Warn("Debug screenshot capture failed.", zap.Error(err))
		return err
	}

	name := fmt.Sprintf("%s_step_%d_%s_%d.png",
		fileNameSanitizer.ReplaceAllString(scriptName, "_"), stepNumber, outcome, time.Now().Unix())
	path := filepath.Join(e.cfg.Executor.ScreenshotDir, name)

	if err := os.MkdirAll(e.cfg.Executor.ScreenshotDir, 0o755); err != nil {
		e.logger.Warn("Could not create screenshot directory.", zap.Error(err))
		return err
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		e.logger.Warn("Could not write debug screenshot.", zap.String("path", path), zap.Error(err))
		return err
	}
	e.logger.Debug("Debug screenshot written.", zap.String("path", path))
	return nil
}
