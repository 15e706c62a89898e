// internal/session/manager.go

// Package session tracks which scripts have executed across the pages of
// one test session and applies trigger policy.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
)

// record is the execution history of one script within the session.
type record struct {
	attempts     int
	succeeded    bool
	pages        map[string]bool
	lastExecuted time.Time
}

// Manager is an in-memory schemas.SessionManager. Safe for concurrent use;
// runners for different pages of the same session share one instance.
type Manager struct {
	logger    *zap.Logger
	sessionID string

	mu      sync.Mutex
	history map[string]*record
}

var _ schemas.SessionManager = (*Manager)(nil)

// NewManager starts an empty session.
func NewManager(logger *zap.Logger) *Manager {
	id := uuid.New().String()
	return &Manager{
		logger:    logger.Named("session").With(zap.String("session_id", id[:8])),
		sessionID: id,
		history:   make(map[string]*record),
	}
}

// SessionID identifies this session in persisted results.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// ShouldExecute applies the script's trigger policy against the session
// history. The conditional trigger's selector probe happens in the
// executor; by the time this is consulted the condition is known to hold.
func (m *Manager) ShouldExecute(_ context.Context, script *schemas.Script, pageID string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.history[script.ID]

	switch script.Trigger {
	case schemas.TriggerOncePerSession:
		if rec != nil && rec.succeeded {
			return false, "already executed successfully this session"
		}
	case schemas.TriggerOncePerPage:
		if rec != nil && rec.pages[pageID] {
			return false, fmt.Sprintf("already executed on page %s", pageID)
		}
	case schemas.TriggerConditional, schemas.TriggerAlways, "":
		// Always eligible.
	default:
		return false, fmt.Sprintf("unknown trigger type %q", script.Trigger)
	}
	return true, ""
}

// CheckConditionViolation reports a regression when a conditional script's
// trigger condition is met again after the script already handled it
// successfully. The script is not re-executed in that case; the
// reappearance itself is the finding.
func (m *Manager) CheckConditionViolation(_ context.Context, script *schemas.Script, pageID string, conditionMet bool) *schemas.Violation {
	if !conditionMet || script.Trigger != schemas.TriggerConditional {
		return nil
	}

	m.mu.Lock()
	rec := m.history[script.ID]
	handled := rec != nil && rec.succeeded
	m.mu.Unlock()

	if !handled {
		return nil
	}

	m.logger.Warn("Condition reappeared after prior handling.",
		zap.String("script_id", script.ID),
		zap.String("selector", script.ConditionSelector),
		zap.String("page_id", pageID))

	return &schemas.Violation{
		Kind:     schemas.ViolationConditionReappeared,
		Severity: schemas.SeverityWarning,
		Selector: script.ConditionSelector,
		ScriptID: script.ID,
		Message: fmt.Sprintf("condition %q reappeared after script %q already handled it",
			script.ConditionSelector, script.Name),
	}
}

// MarkExecuted records an execution attempt for future trigger decisions.
// Failed attempts do not consume a once-per trigger; the script stays
// eligible for retry on a later page.
func (m *Manager) MarkExecuted(_ context.Context, scriptID, pageID string, success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.history[scriptID]
	if rec == nil {
		rec = &record{pages: make(map[string]bool)}
		m.history[scriptID] = rec
	}

	rec.attempts++
	rec.lastExecuted = time.Now()
	if success {
		rec.succeeded = true
		rec.pages[pageID] = true
	}

	m.logger.Debug("Execution recorded.",
		zap.String("script_id", scriptID),
		zap.String("page_id", pageID),
		zap.Bool("success", success),
		zap.Duration("duration", duration))
}

// ExecutedScriptIDs returns the ids of scripts that have executed
// successfully this session, for expected-state construction.
func (m *Manager) ExecutedScriptIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for id, rec := range m.history {
		if rec.succeeded {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
