// internal/executor/session.go
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
)

// ExecuteWithSession consults the session manager before running a script
// and reports the outcome back to it afterwards. Trigger policy lives
// entirely in the session manager; the only browser interaction the
// pre-execution phase performs is the existence probe for a conditional
// script's condition selector.
func (e *Executor) ExecuteWithSession(ctx context.Context, page schemas.Page, script *schemas.Script, pageID string, session schemas.SessionManager, envVars map[string]string) (*schemas.ExecutionOutcome, error) {
	log := e.logger.With(zap.String("script_id", script.ID), zap.String("page_id", pageID))

	skip := func(reason string) *schemas.ExecutionOutcome {
		log.Info("Skipping script.", zap.String("reason", reason))
		return &schemas.ExecutionOutcome{
			ScriptID:   script.ID,
			ScriptName: script.Name,
			Skipped:    true,
			SkipReason: reason,
		}
	}

	if !script.Enabled {
		return skip("script disabled"), nil
	}

	if script.Trigger == schemas.TriggerConditional {
		if script.ConditionSelector == "" {
			return skip("conditional script has no condition selector"), nil
		}
		conditionMet, err := page.Exists(ctx, script.ConditionSelector)
		if err != nil {
			return nil, fmt.Errorf("condition check for %q failed: %w", script.ConditionSelector, err)
		}

		// A condition that the script already handled this session should
		// not be present again. When it is, report the regression instead
		// of re-executing.
		if v := session.CheckConditionViolation(ctx, script, pageID, conditionMet); v != nil {
			outcome := skip("condition reappeared after prior handling")
			outcome.ConditionViolation = v
			return outcome, nil
		}
		if !conditionMet {
			return skip("condition not met"), nil
		}
	}

	if run, reason := session.ShouldExecute(ctx, script, pageID); !run {
		return skip(reason), nil
	}

	start := time.Now()
	outcome, err := e.Execute(ctx, page, script, envVars)
	if outcome != nil {
		session.MarkExecuted(ctx, script.ID, pageID, outcome.Success, time.Since(start))
	}
	return outcome, err
}
