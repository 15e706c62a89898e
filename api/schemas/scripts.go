// api/schemas/scripts.go
package schemas

// ActionType enumerates the browser actions a setup script step can perform.
type ActionType string

const (
	ActionClick              ActionType = "click"
	ActionTypeText           ActionType = "type"
	ActionWait               ActionType = "wait"
	ActionWaitForSelector    ActionType = "wait_for_selector"
	ActionWaitForNavigation  ActionType = "wait_for_navigation"
	ActionWaitForNetworkIdle ActionType = "wait_for_network_idle"
	ActionScroll             ActionType = "scroll"
	ActionSelect             ActionType = "select"
	ActionHover              ActionType = "hover"
	ActionScreenshot         ActionType = "screenshot"
)

// ScriptScope indicates where a script was configured by the operator.
type ScriptScope string

const (
	ScopeWebsite ScriptScope = "website"
	ScopePage    ScriptScope = "page"
	ScopeTestRun ScriptScope = "test_run"
)

// TriggerType is the policy governing how often a script executes.
type TriggerType string

const (
	TriggerOncePerSession TriggerType = "once_per_session"
	TriggerOncePerPage    TriggerType = "once_per_page"
	TriggerConditional    TriggerType = "conditional"
	TriggerAlways         TriggerType = "always"
)

// ScriptStep is a single recorded action. Steps are immutable once created
// and executed in StepNumber order.
type ScriptStep struct {
	StepNumber      int        `json:"step_number"`
	Action          ActionType `json:"action"`
	Selector        string     `json:"selector,omitempty"`
	Value           string     `json:"value,omitempty"`
	TimeoutMs       int        `json:"timeout_ms,omitempty"`
	WaitAfterMs     int        `json:"wait_after_ms,omitempty"`
	ScreenshotAfter bool       `json:"screenshot_after,omitempty"`
}

// ScriptValidation is evaluated after all steps of a script succeed.
// A match on any failure selector is fatal; a configured success selector
// must resolve; configured success text must appear in the page content.
type ScriptValidation struct {
	SuccessSelector  string   `json:"success_selector,omitempty"`
	SuccessText      string   `json:"success_text,omitempty"`
	FailureSelectors []string `json:"failure_selectors,omitempty"`
}

// Script is an operator-authored, ordered sequence of browser actions used
// to move a page into a non-initial state before testing. Scripts are
// read-only during a run.
type Script struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Enabled     bool        `json:"enabled"`
	Scope       ScriptScope `json:"scope,omitempty"`
	Trigger     TriggerType `json:"trigger,omitempty"`

	// ConditionSelector gates execution when Trigger is TriggerConditional.
	ConditionSelector string `json:"condition_selector,omitempty"`

	Steps      []ScriptStep      `json:"steps"`
	Validation *ScriptValidation `json:"validation,omitempty"`

	// Post-conditions checked by the state validator after the script runs.
	ExpectVisibleAfter []string `json:"expect_visible_after,omitempty"`
	ExpectHiddenAfter  []string `json:"expect_hidden_after,omitempty"`

	// Whether the orchestrator tests the page state immediately before
	// and/or after this script executes.
	TestBeforeExecution bool `json:"test_before_execution,omitempty"`
	TestAfterExecution  bool `json:"test_after_execution,omitempty"`

	// Clearing flags force a full browser restart before the script runs;
	// in-page clearing leaves residual state behind.
	ClearCookies bool `json:"clear_cookies,omitempty"`
	ClearStorage bool `json:"clear_storage,omitempty"`

	// ExecutionOrder positions the script in the sequential state chain.
	ExecutionOrder int `json:"execution_order,omitempty"`
}

// RequiresCleanState reports whether the script demands a pristine browser
// before executing.
func (s *Script) RequiresCleanState() bool {
	return s.ClearCookies || s.ClearStorage
}

// HasPostConditions reports whether the script configures any expected
// visible/hidden elements for state validation.
func (s *Script) HasPostConditions() bool {
	return len(s.ExpectVisibleAfter) > 0 || len(s.ExpectHiddenAfter) > 0
}
