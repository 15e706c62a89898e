// api/schemas/results.go
package schemas

import "time"

// Severity grades a violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ViolationKind distinguishes the ways a page state can diverge from
// expectations.
type ViolationKind string

const (
	// ViolationElementNotFound: an expected-visible element is absent from
	// the DOM entirely.
	ViolationElementNotFound ViolationKind = "expected_element_not_found"
	// ViolationElementHidden: an expected-visible element exists but is not
	// CSS-visible.
	ViolationElementHidden ViolationKind = "expected_element_hidden"
	// ViolationUnexpectedVisible: an expected-hidden element is present and
	// visible.
	ViolationUnexpectedVisible ViolationKind = "unexpected_element_visible"
	// ViolationCheckFailed: the visibility probe itself errored instead of
	// producing a definite answer. Lower severity than a real mismatch.
	ViolationCheckFailed ViolationKind = "state_check_failed"
	// ViolationConditionReappeared: a condition a script previously handled
	// (e.g. a dismissed cookie banner) is present again.
	ViolationConditionReappeared ViolationKind = "condition_reappeared"
)

// Violation is a structured state-validation failure. Violations are merged
// into the TestResult for the state in which they were observed.
type Violation struct {
	Kind     ViolationKind `json:"kind"`
	Severity Severity      `json:"severity"`
	Selector string        `json:"selector,omitempty"`
	ScriptID string        `json:"script_id,omitempty"`
	Message  string        `json:"message"`
}

// StepLogEntry records the outcome of one executed script step.
type StepLogEntry struct {
	StepNumber int        `json:"step_number"`
	Action     ActionType `json:"action"`
	Selector   string     `json:"selector,omitempty"`
	Success    bool       `json:"success"`
	DurationMs int64      `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
}

// ExecutionOutcome is the executor's report for one script run. Expected
// failures (locator misses, timeouts, validation mismatches) are captured
// here rather than surfaced as errors.
type ExecutionOutcome struct {
	ScriptID      string         `json:"script_id"`
	ScriptName    string         `json:"script_name"`
	Success       bool           `json:"success"`
	Skipped       bool           `json:"skipped,omitempty"`
	SkipReason    string         `json:"skip_reason,omitempty"`
	StepsExecuted int            `json:"steps_executed"`
	DurationMs    int64          `json:"duration_ms"`
	Log           []StepLogEntry `json:"log,omitempty"`
	Error         string         `json:"error,omitempty"`

	// ConditionViolation is set when a previously handled conditional
	// trigger reappeared instead of the script re-executing.
	ConditionViolation *Violation `json:"condition_violation,omitempty"`
}

// TestResult is produced by the injected test callback and decorated by the
// runner. The runner is the sole writer of PageState, StateSequence,
// SessionID and RelatedResultIDs; everything else belongs to the callback.
type TestResult struct {
	ID     string `json:"id"`
	PageID string `json:"page_id"`
	URL    string `json:"url,omitempty"`
	Title  string `json:"title,omitempty"`

	Violations []Violation `json:"violations,omitempty"`

	// Orchestrator-owned metadata.
	PageState        *PageTestState `json:"page_state,omitempty"`
	StateSequence    int            `json:"state_sequence"`
	SessionID        string         `json:"session_id,omitempty"`
	RelatedResultIDs []string       `json:"related_result_ids,omitempty"`

	// Error marks a terminal callback failure; no further states were
	// attempted after a result carrying one.
	Error string `json:"error,omitempty"`

	ObservedAt time.Time `json:"observed_at"`
}

// RestartStatus reports how a browser-lifecycle recovery attempt ended.
type RestartStatus string

const (
	RestartRecovered     RestartStatus = "recovered"
	RestartUnrecoverable RestartStatus = "unrecoverable"
)

// RestartOutcome is the typed result of a browser restart, letting callers
// distinguish "recovered, continue" from "unrecoverable, abort run".
type RestartOutcome struct {
	Status   RestartStatus
	Attempts int
	Err      error
}
