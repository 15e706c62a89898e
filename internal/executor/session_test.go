// internal/executor/session_test.go
package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
	"github.com/bobdodd/auto-a11y-go/internal/mocks"
)

func TestExecuteWithSession(t *testing.T) {
	ctx := context.Background()

	t.Run("DisabledScriptSkipsWithoutTouchingBrowser", func(t *testing.T) {
		exec := newTestExecutor(t)
		page := new(mocks.MockPage)
		session := new(mocks.MockSessionManager)

		s := script()
		s.Enabled = false

		outcome, err := exec.ExecuteWithSession(ctx, page, s, "page-1", session, nil)
		require.NoError(t, err)
		assert.True(t, outcome.Skipped)
		assert.Equal(t, "script disabled", outcome.SkipReason)
		page.AssertNotCalled(t, "Exists", mock.Anything, mock.Anything)
		session.AssertNotCalled(t, "MarkExecuted", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ConditionalSkipsWhenConditionNotMet", func(t *testing.T) {
		exec := newTestExecutor(t)
		page := new(mocks.MockPage)
		session := new(mocks.MockSessionManager)

		s := script(schemas.ScriptStep{StepNumber: 1, Action: schemas.ActionClick, Selector: "#accept"})
		s.Trigger = schemas.TriggerConditional
		s.ConditionSelector = "#cookie-banner"

		page.On("Exists", mock.Anything, "#cookie-banner").Return(false, nil).Once()
		session.On("CheckConditionViolation", mock.Anything, s, "page-1", false).Return(nil).Once()

		outcome, err := exec.ExecuteWithSession(ctx, page, s, "page-1", session, nil)
		require.NoError(t, err)
		assert.True(t, outcome.Skipped)
		assert.Equal(t, "condition not met", outcome.SkipReason)
		page.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
	})

	t.Run("ConditionReappearanceReportedNotReExecuted", func(t *testing.T) {
		exec := newTestExecutor(t)
		page := new(mocks.MockPage)
		session := new(mocks.MockSessionManager)

		s := script(schemas.ScriptStep{StepNumber: 1, Action: schemas.ActionClick, Selector: "#accept"})
		s.Trigger = schemas.TriggerConditional
		s.ConditionSelector = "#cookie-banner"

		violation := &schemas.Violation{
			Kind:     schemas.ViolationConditionReappeared,
			Severity: schemas.SeverityWarning,
			Selector: "#cookie-banner",
			ScriptID: s.ID,
			Message:  "condition reappeared after prior successful execution",
		}
		page.On("Exists", mock.Anything, "#cookie-banner").Return(true, nil).Once()
		session.On("CheckConditionViolation", mock.Anything, s, "page-1", true).Return(violation).Once()

		outcome, err := exec.ExecuteWithSession(ctx, page, s, "page-1", session, nil)
		require.NoError(t, err)
		assert.True(t, outcome.Skipped)
		require.NotNil(t, outcome.ConditionViolation)
		assert.Equal(t, schemas.ViolationConditionReappeared, outcome.ConditionViolation.Kind)
		page.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
	})

	t.Run("SessionDeclineSkips", func(t *testing.T) {
		exec := newTestExecutor(t)
		page := new(mocks.MockPage)
		session := new(mocks.MockSessionManager)

		s := script(schemas.ScriptStep{StepNumber: 1, Action: schemas.ActionClick, Selector: "#login"})
		s.Trigger = schemas.TriggerOncePerSession

		session.On("ShouldExecute", mock.Anything, s, "page-1").
			Return(false, "already executed this session").Once()

		outcome, err := exec.ExecuteWithSession(ctx, page, s, "page-1", session, nil)
		require.NoError(t, err)
		assert.True(t, outcome.Skipped)
		assert.Equal(t, "already executed this session", outcome.SkipReason)
	})

	t.Run("ExecutesAndReportsBack", func(t *testing.T) {
		exec := newTestExecutor(t)
		page := new(mocks.MockPage)
		session := new(mocks.MockSessionManager)

		s := script(schemas.ScriptStep{StepNumber: 1, Action: schemas.ActionClick, Selector: "#login"})

		page.On("Click", mock.Anything, "#login").Return(nil).Once()
		session.On("ShouldExecute", mock.Anything, s, "page-1").Return(true, "").Once()
		session.On("MarkExecuted", mock.Anything, s.ID, "page-1", true, mock.Anything).Once()

		outcome, err := exec.ExecuteWithSession(ctx, page, s, "page-1", session, nil)
		require.NoError(t, err)
		assert.True(t, outcome.Success)
		assert.False(t, outcome.Skipped)
		session.AssertExpectations(t)
		page.AssertExpectations(t)
	})

	t.Run("FailedExecutionStillMarked", func(t *testing.T) {
		exec := newTestExecutor(t)
		page := new(mocks.MockPage)
		session := new(mocks.MockSessionManager)

		s := script(schemas.ScriptStep{StepNumber: 1, Action: schemas.ActionClick, Selector: "#flaky"})

		page.On("Click", mock.Anything, "#flaky").Return(errors.New("element detached")).Once()
		session.On("ShouldExecute", mock.Anything, s, "page-1").Return(true, "").Once()
		session.On("MarkExecuted", mock.Anything, s.ID, "page-1", false, mock.Anything).Once()

		outcome, err := exec.ExecuteWithSession(ctx, page, s, "page-1", session, nil)
		require.NoError(t, err)
		assert.False(t, outcome.Success)
		session.AssertExpectations(t)
	})
}
