// internal/runner/modes.go
package runner

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
	"github.com/bobdodd/auto-a11y-go/internal/matrix"
	"github.com/bobdodd/auto-a11y-go/internal/validator"
)

// RunScripts visits states in script registration order: the page's initial
// state first (when any script tests before execution), then the state after
// each script that tests after execution. Always returns the results
// gathered so far; the error is non-nil only for unexpected conditions such
// as context cancellation.
func (r *Runner) RunScripts(ctx context.Context, page schemas.Page, pageID, url string, scripts []*schemas.Script) ([]*schemas.TestResult, error) {
	t := r.newRun(page, pageID, url)
	t.logger.Info("Starting script-order run.", zap.Int("scripts", len(scripts)))

	for _, s := range scripts {
		if s.TestBeforeExecution {
			t.testState(ctx, initialState())
			break
		}
	}

	var executed []string
	for _, script := range scripts {
		if t.terminal {
			break
		}
		log := t.logger.With(zap.String("script_id", script.ID))

		if !t.ensureAlive(ctx) {
			log.Warn("Browser unusable, abandoning remaining scripts.")
			break
		}

		if script.RequiresCleanState() {
			if r.lifecycle == nil {
				// Never run a clean-state script against dirty state.
				log.Warn("Script requires a clean browser but no lifecycle manager is available; skipping.")
				continue
			}
			log.Info("Restarting browser for clean state.")
			if !t.restart(ctx) {
				break
			}
		}

		outcome, err := r.exec.ExecuteWithSession(ctx, t.page, script, pageID, r.session, r.envVars)
		if err != nil {
			t.linkRelated()
			return t.results, err
		}
		if outcome.ConditionViolation != nil {
			t.addViolations(*outcome.ConditionViolation)
		}
		if !outcome.Success {
			if !outcome.Skipped {
				log.Warn("Script failed; its post-state testing is skipped.",
					zap.String("error", outcome.Error))
			}
			continue
		}

		executed = append(executed, script.ID)

		if script.HasPostConditions() {
			expected := validator.BuildExpectedState(script, executed)
			t.addViolations(r.validator.ValidateState(ctx, t.page, expected)...)
		}

		if script.TestAfterExecution {
			if !t.page.Alive(ctx) {
				// Post-state skipped, remaining scripts still get their turn.
				log.Warn("Browser connection lost after script; skipping its post-state.")
				continue
			}
			t.testState(ctx, validator.BuildExpectedState(script, executed))
		}
	}

	t.linkRelated()
	t.logger.Info("Script-order run finished.", zap.Int("results", len(t.results)))
	return t.results, nil
}

// RunMatrix visits every enabled state combination: for each one the page
// is reloaded pristine, the scripts the combination marks "after" are
// executed in execution order, and the callback runs once. Trigger policy
// does not apply here; the combination, not the session history, decides
// what executes.
func (r *Runner) RunMatrix(ctx context.Context, page schemas.Page, pageID, url string, scripts []*schemas.Script, m *matrix.Matrix) ([]*schemas.TestResult, error) {
	t := r.newRun(page, pageID, url)

	ordered := make([]*schemas.Script, len(scripts))
	copy(ordered, scripts)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExecutionOrder < ordered[j].ExecutionOrder
	})

	combos := m.EnabledCombinations()
	t.logger.Info("Starting matrix-driven run.", zap.Int("combinations", len(combos)))

	for _, combo := range combos {
		if t.terminal {
			break
		}
		log := t.logger.With(zap.String("combination", combo.ID()))

		if !t.ensureAlive(ctx) {
			log.Warn("Browser unusable, abandoning remaining combinations.")
			break
		}
		if err := t.page.Navigate(ctx, url); err != nil {
			log.Warn("Pristine reload failed; skipping combination.", zap.Error(err))
			continue
		}

		reached := true
		var executed []string
		for _, s := range ordered {
			if combo.States[s.ID] != schemas.PhaseAfter {
				continue
			}
			outcome, err := r.exec.Execute(ctx, t.page, s, r.envVars)
			if err != nil {
				t.linkRelated()
				return t.results, err
			}
			if !outcome.Success {
				log.Warn("Setup script failed; combination state not reached.",
					zap.String("script_id", s.ID), zap.String("error", outcome.Error))
				reached = false
				break
			}
			executed = append(executed, s.ID)
		}
		if !reached {
			continue
		}

		t.testState(ctx, &schemas.PageTestState{
			StateID:         combo.ID(),
			Description:     combo.Description,
			ScriptsExecuted: executed,
		})
	}

	t.linkRelated()
	t.logger.Info("Matrix-driven run finished.", zap.Int("results", len(t.results)))
	return t.results, nil
}

// RunButtons tests the initial state, then clicks each button selector in
// turn and tests the state it produced. Used when full setup scripts are
// overkill. With reloadBetween, the page is reloaded pristine before every
// click so states stay independent.
func (r *Runner) RunButtons(ctx context.Context, page schemas.Page, pageID, url string, buttons []string, reloadBetween bool) ([]*schemas.TestResult, error) {
	t := r.newRun(page, pageID, url)
	t.logger.Info("Starting button-iteration run.", zap.Int("buttons", len(buttons)))

	t.testState(ctx, initialState())

	for _, selector := range buttons {
		if t.terminal {
			break
		}
		log := t.logger.With(zap.String("selector", selector))

		if !t.ensureAlive(ctx) {
			log.Warn("Browser unusable, abandoning remaining buttons.")
			break
		}
		if reloadBetween {
			if err := t.page.Navigate(ctx, url); err != nil {
				log.Warn("Reload before click failed; skipping button.", zap.Error(err))
				continue
			}
		}

		if err := t.page.Click(ctx, selector); err != nil {
			log.Warn("Button click failed; skipping its state.", zap.Error(err))
			continue
		}
		t.settle(ctx)

		t.testState(ctx, &schemas.PageTestState{
			StateID:         fmt.Sprintf("clicked_%s", selector),
			Description:     fmt.Sprintf("state after clicking %q", selector),
			ElementsClicked: []string{selector},
		})
	}

	t.linkRelated()
	t.logger.Info("Button-iteration run finished.", zap.Int("results", len(t.results)))
	return t.results, nil
}

func initialState() *schemas.PageTestState {
	return &schemas.PageTestState{
		StateID:     "initial",
		Description: "initial page state, no scripts executed",
	}
}
