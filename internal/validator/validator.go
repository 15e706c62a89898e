// internal/validator/validator.go

// Package validator checks that a page actually reached the state a setup
// script promised, distinguishing missing elements from hidden ones.
package validator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
)

// Validator probes a page against an expected state description.
type Validator struct {
	logger *zap.Logger
}

// New creates a state validator.
func New(logger *zap.Logger) *Validator {
	return &Validator{logger: logger.Named("validator")}
}

// ValidateState returns one violation per divergence between the live page
// and the expected state. An empty slice means the page matches. A probe
// that errors instead of answering produces a lower-severity violation
// rather than being swallowed.
func (v *Validator) ValidateState(ctx context.Context, page schemas.Page, expected *schemas.PageTestState) []schemas.Violation {
	if expected == nil {
		return nil
	}
	log := v.logger.With(zap.String("state_id", expected.StateID))
	var violations []schemas.Violation

	for _, sel := range expected.ElementsVisible {
		status, err := page.Visibility(ctx, sel)
		switch {
		case err != nil:
			violations = append(violations, checkFailed(sel, err))
		case !status.Found:
			violations = append(violations, schemas.Violation{
				Kind:     schemas.ViolationElementNotFound,
				Severity: schemas.SeverityError,
				Selector: sel,
				Message:  fmt.Sprintf("expected element %q not found in DOM", sel),
			})
		case !status.Visible:
			violations = append(violations, schemas.Violation{
				Kind:     schemas.ViolationElementHidden,
				Severity: schemas.SeverityError,
				Selector: sel,
				Message:  fmt.Sprintf("expected element %q exists but is not visible", sel),
			})
		}
	}

	for _, sel := range expected.ElementsHidden {
		status, err := page.Visibility(ctx, sel)
		switch {
		case err != nil:
			violations = append(violations, checkFailed(sel, err))
		case status.Found && status.Visible:
			violations = append(violations, schemas.Violation{
				Kind:     schemas.ViolationUnexpectedVisible,
				Severity: schemas.SeverityError,
				Selector: sel,
				Message:  fmt.Sprintf("element %q expected hidden but is visible", sel),
			})
		}
	}

	if len(violations) > 0 {
		log.Warn("Page state diverged from expectations.",
			zap.Int("violations", len(violations)))
	}
	return violations
}

func checkFailed(selector string, err error) schemas.Violation {
	return schemas.Violation{
		Kind:     schemas.ViolationCheckFailed,
		Severity: schemas.SeverityWarning,
		Selector: selector,
		Message:  fmt.Sprintf("visibility check for %q errored: %v", selector, err),
	}
}

// BuildExpectedState turns a script's configured post-conditions plus the
// already-executed script ids into a PageTestState. Pure; performs no I/O.
func BuildExpectedState(script *schemas.Script, executedScriptIDs []string) *schemas.PageTestState {
	executed := make([]string, len(executedScriptIDs))
	copy(executed, executedScriptIDs)

	visible := make([]string, len(script.ExpectVisibleAfter))
	copy(visible, script.ExpectVisibleAfter)
	hidden := make([]string, len(script.ExpectHiddenAfter))
	copy(hidden, script.ExpectHiddenAfter)

	return &schemas.PageTestState{
		StateID:         fmt.Sprintf("after_%s", script.ID),
		Description:     fmt.Sprintf("page state after script %q", script.Name),
		ScriptsExecuted: executed,
		ElementsVisible: visible,
		ElementsHidden:  hidden,
	}
}
