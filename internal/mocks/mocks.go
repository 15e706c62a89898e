// File: internal/mocks/mocks.go

// Package mocks provides shared testify mocks for the orchestration core's
// collaborator interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
)

// -- Page Mock --

// MockPage mocks the schemas.Page browser-driver surface.
type MockPage struct {
	mock.Mock
}

var _ schemas.Page = (*MockPage)(nil)

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) Type(ctx context.Context, selector, text string) error {
	return m.Called(ctx, selector, text).Error(0)
}

func (m *MockPage) SelectOption(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockPage) Hover(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) ScrollIntoView(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return m.Called(ctx, selector, timeout).Error(0)
}

func (m *MockPage) WaitForNavigation(ctx context.Context, timeout time.Duration) error {
	return m.Called(ctx, timeout).Error(0)
}

func (m *MockPage) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	return m.Called(ctx, timeout).Error(0)
}

func (m *MockPage) Exists(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) Visibility(ctx context.Context, selector string) (schemas.VisibilityStatus, error) {
	args := m.Called(ctx, selector)
	return args.Get(0).(schemas.VisibilityStatus), args.Error(1)
}

func (m *MockPage) Content(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPage) Alive(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *MockPage) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- SessionManager Mock --

// MockSessionManager mocks the schemas.SessionManager trigger-policy
// collaborator.
type MockSessionManager struct {
	mock.Mock
}

var _ schemas.SessionManager = (*MockSessionManager)(nil)

func (m *MockSessionManager) ShouldExecute(ctx context.Context, script *schemas.Script, pageID string) (bool, string) {
	args := m.Called(ctx, script, pageID)
	return args.Bool(0), args.String(1)
}

func (m *MockSessionManager) CheckConditionViolation(ctx context.Context, script *schemas.Script, pageID string, conditionMet bool) *schemas.Violation {
	args := m.Called(ctx, script, pageID, conditionMet)
	if v := args.Get(0); v != nil {
		return v.(*schemas.Violation)
	}
	return nil
}

func (m *MockSessionManager) MarkExecuted(ctx context.Context, scriptID, pageID string, success bool, duration time.Duration) {
	m.Called(ctx, scriptID, pageID, success, duration)
}

// -- BrowserLifecycle Mock --

// MockLifecycle mocks the schemas.BrowserLifecycle restart collaborator.
type MockLifecycle struct {
	mock.Mock
}

var _ schemas.BrowserLifecycle = (*MockLifecycle)(nil)

func (m *MockLifecycle) Restart(ctx context.Context) (schemas.Page, schemas.RestartOutcome) {
	args := m.Called(ctx)
	var page schemas.Page
	if p := args.Get(0); p != nil {
		page = p.(schemas.Page)
	}
	return page, args.Get(1).(schemas.RestartOutcome)
}
