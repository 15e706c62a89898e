// internal/engine/engine_test.go
package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
	"github.com/bobdodd/auto-a11y-go/internal/config"
	"github.com/bobdodd/auto-a11y-go/internal/mocks"
)

// MockRepository mocks the store.Repository persistence surface.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) SaveResults(ctx context.Context, results []*schemas.TestResult) error {
	return m.Called(ctx, results).Error(0)
}

func (m *MockRepository) ResultsBySession(ctx context.Context, sessionID string) ([]*schemas.TestResult, error) {
	args := m.Called(ctx, sessionID)
	if r := args.Get(0); r != nil {
		return r.([]*schemas.TestResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockAuditor mocks the per-page audit strategy.
type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) AuditPage(ctx context.Context, page schemas.Page, task PageTask) ([]*schemas.TestResult, error) {
	args := m.Called(ctx, page, task)
	if r := args.Get(0); r != nil {
		return r.([]*schemas.TestResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func engineConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Engine.Concurrency = 2
	cfg.Engine.PagesPerSecond = 0
	return cfg
}

func pageFactory(created *atomic.Int64) NewPageFunc {
	return func(ctx context.Context) (schemas.Page, error) {
		created.Add(1)
		page := new(mocks.MockPage)
		page.On("Navigate", mock.Anything, mock.Anything).Return(nil)
		page.On("Close", mock.Anything).Return(nil)
		return page, nil
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	cfg := engineConfig()
	logger := zap.NewNop()
	repo := new(MockRepository)
	auditor := new(MockAuditor)
	factory := NewPageFunc(func(ctx context.Context) (schemas.Page, error) { return nil, nil })

	_, err := New(nil, logger, repo, factory, auditor)
	assert.Error(t, err)
	_, err = New(cfg, nil, repo, factory, auditor)
	assert.Error(t, err)
	_, err = New(cfg, logger, nil, factory, auditor)
	assert.Error(t, err)
	_, err = New(cfg, logger, repo, nil, auditor)
	assert.Error(t, err)
	_, err = New(cfg, logger, repo, factory, nil)
	assert.Error(t, err)

	e, err := New(cfg, logger, repo, factory, auditor)
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestRunAuditsEveryTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := new(MockRepository)
	auditor := new(MockAuditor)
	var created atomic.Int64

	results := []*schemas.TestResult{{ID: "r1"}}
	auditor.On("AuditPage", mock.Anything, mock.Anything, mock.Anything).Return(results, nil).Times(3)
	repo.On("SaveResults", mock.Anything, results).Return(nil).Times(3)

	e, err := New(engineConfig(), zap.NewNop(), repo, pageFactory(&created), auditor)
	require.NoError(t, err)

	tasks := []PageTask{
		{PageID: "p1", URL: "https://example.com/a"},
		{PageID: "p2", URL: "https://example.com/b"},
		{PageID: "p3", URL: "https://example.com/c"},
	}
	require.NoError(t, e.Run(context.Background(), tasks))

	assert.Equal(t, int64(3), created.Load(), "one fresh page per task")
	repo.AssertExpectations(t)
	auditor.AssertExpectations(t)
}

func TestRunDiscardsInvalidURL(t *testing.T) {
	repo := new(MockRepository)
	auditor := new(MockAuditor)
	var created atomic.Int64

	e, err := New(engineConfig(), zap.NewNop(), repo, pageFactory(&created), auditor)
	require.NoError(t, err)

	tasks := []PageTask{
		{PageID: "p1", URL: "not a url"},
		{PageID: "p2", URL: "/relative/only"},
	}
	require.NoError(t, e.Run(context.Background(), tasks))

	assert.Zero(t, created.Load(), "no browser page for an unusable task")
	auditor.AssertNotCalled(t, "AuditPage", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunDiscardsResultsOnUnexpectedAuditError(t *testing.T) {
	repo := new(MockRepository)
	auditor := new(MockAuditor)
	var created atomic.Int64

	auditor.On("AuditPage", mock.Anything, mock.Anything, mock.Anything).
		Return([]*schemas.TestResult{{ID: "r1"}}, errors.New("browser exploded")).Once()

	e, err := New(engineConfig(), zap.NewNop(), repo, pageFactory(&created), auditor)
	require.NoError(t, err)

	require.NoError(t, e.Run(context.Background(), []PageTask{{PageID: "p1", URL: "https://example.com/"}}))
	repo.AssertNotCalled(t, "SaveResults", mock.Anything, mock.Anything)
}

func TestRunSavesPartialResultsOnTimeout(t *testing.T) {
	repo := new(MockRepository)
	auditor := new(MockAuditor)
	var created atomic.Int64

	partial := []*schemas.TestResult{{ID: "r1"}}
	auditor.On("AuditPage", mock.Anything, mock.Anything, mock.Anything).
		Return(partial, context.DeadlineExceeded).Once()
	repo.On("SaveResults", mock.Anything, partial).Return(nil).Once()

	e, err := New(engineConfig(), zap.NewNop(), repo, pageFactory(&created), auditor)
	require.NoError(t, err)

	require.NoError(t, e.Run(context.Background(), []PageTask{{PageID: "p1", URL: "https://example.com/"}}))
	repo.AssertExpectations(t)
}

func TestRunRejectsReentrantStart(t *testing.T) {
	repo := new(MockRepository)
	auditor := new(MockAuditor)
	var created atomic.Int64

	e, err := New(engineConfig(), zap.NewNop(), repo, pageFactory(&created), auditor)
	require.NoError(t, err)

	e.stateLock.Lock()
	e.isRunning = true
	e.stateLock.Unlock()

	assert.Error(t, e.Run(context.Background(), nil))
}
