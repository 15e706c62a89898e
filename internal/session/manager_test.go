// internal/session/manager_test.go
package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
)

func TestShouldExecuteTriggerPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("OncePerSession", func(t *testing.T) {
		m := NewManager(zap.NewNop())
		s := &schemas.Script{ID: "login", Trigger: schemas.TriggerOncePerSession}

		run, _ := m.ShouldExecute(ctx, s, "page-1")
		assert.True(t, run)

		m.MarkExecuted(ctx, "login", "page-1", true, time.Second)

		run, reason := m.ShouldExecute(ctx, s, "page-2")
		assert.False(t, run, "must not run twice in one session, even on another page")
		assert.NotEmpty(t, reason)
	})

	t.Run("FailedOncePerSessionStaysEligible", func(t *testing.T) {
		m := NewManager(zap.NewNop())
		s := &schemas.Script{ID: "login", Trigger: schemas.TriggerOncePerSession}

		m.MarkExecuted(ctx, "login", "page-1", false, time.Second)

		run, _ := m.ShouldExecute(ctx, s, "page-2")
		assert.True(t, run, "a failed attempt does not consume the trigger")
	})

	t.Run("OncePerPage", func(t *testing.T) {
		m := NewManager(zap.NewNop())
		s := &schemas.Script{ID: "dismiss", Trigger: schemas.TriggerOncePerPage}

		m.MarkExecuted(ctx, "dismiss", "page-1", true, time.Second)

		run, _ := m.ShouldExecute(ctx, s, "page-1")
		assert.False(t, run)

		run, _ = m.ShouldExecute(ctx, s, "page-2")
		assert.True(t, run, "a different page is fair game")
	})

	t.Run("AlwaysAndEmptyTrigger", func(t *testing.T) {
		m := NewManager(zap.NewNop())
		m.MarkExecuted(ctx, "s", "page-1", true, time.Second)

		run, _ := m.ShouldExecute(ctx, &schemas.Script{ID: "s", Trigger: schemas.TriggerAlways}, "page-1")
		assert.True(t, run)

		run, _ = m.ShouldExecute(ctx, &schemas.Script{ID: "s"}, "page-1")
		assert.True(t, run, "missing trigger behaves like always")
	})

	t.Run("UnknownTriggerRefused", func(t *testing.T) {
		m := NewManager(zap.NewNop())
		run, reason := m.ShouldExecute(ctx, &schemas.Script{ID: "s", Trigger: "hourly"}, "page-1")
		assert.False(t, run)
		assert.Contains(t, reason, "hourly")
	})
}

func TestCheckConditionViolation(t *testing.T) {
	ctx := context.Background()
	script := &schemas.Script{
		ID:                "cookie",
		Name:              "Dismiss Cookie Banner",
		Trigger:           schemas.TriggerConditional,
		ConditionSelector: "#cookie-banner",
	}

	t.Run("NoPriorExecution", func(t *testing.T) {
		m := NewManager(zap.NewNop())
		assert.Nil(t, m.CheckConditionViolation(ctx, script, "page-1", true))
	})

	t.Run("ConditionNotMet", func(t *testing.T) {
		m := NewManager(zap.NewNop())
		m.MarkExecuted(ctx, "cookie", "page-1", true, time.Second)
		assert.Nil(t, m.CheckConditionViolation(ctx, script, "page-2", false))
	})

	t.Run("ReappearanceAfterSuccess", func(t *testing.T) {
		m := NewManager(zap.NewNop())
		m.MarkExecuted(ctx, "cookie", "page-1", true, time.Second)

		v := m.CheckConditionViolation(ctx, script, "page-2", true)
		require.NotNil(t, v)
		assert.Equal(t, schemas.ViolationConditionReappeared, v.Kind)
		assert.Equal(t, "#cookie-banner", v.Selector)
		assert.Equal(t, "cookie", v.ScriptID)
	})

	t.Run("ReappearanceAfterFailureIsNotAViolation", func(t *testing.T) {
		m := NewManager(zap.NewNop())
		m.MarkExecuted(ctx, "cookie", "page-1", false, time.Second)
		assert.Nil(t, m.CheckConditionViolation(ctx, script, "page-2", true))
	})

	t.Run("NonConditionalScriptsNeverViolate", func(t *testing.T) {
		m := NewManager(zap.NewNop())
		always := &schemas.Script{ID: "s", Trigger: schemas.TriggerAlways}
		m.MarkExecuted(ctx, "s", "page-1", true, time.Second)
		assert.Nil(t, m.CheckConditionViolation(ctx, always, "page-1", true))
	})
}

func TestExecutedScriptIDs(t *testing.T) {
	ctx := context.Background()
	m := NewManager(zap.NewNop())

	m.MarkExecuted(ctx, "zeta", "page-1", true, time.Second)
	m.MarkExecuted(ctx, "alpha", "page-1", true, time.Second)
	m.MarkExecuted(ctx, "failed", "page-1", false, time.Second)

	assert.Equal(t, []string{"alpha", "zeta"}, m.ExecutedScriptIDs())
}

func TestSessionIDStable(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NotEmpty(t, m.SessionID())
	assert.Equal(t, m.SessionID(), m.SessionID())
	assert.NotEqual(t, m.SessionID(), NewManager(zap.NewNop()).SessionID())
}
