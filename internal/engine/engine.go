// internal/engine/engine.go

// Package engine fans page-audit tasks out to a bounded set of workers.
// Each worker owns one browser page at a time; the engine imposes the
// concurrency and pacing limits.
package engine

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
	"github.com/bobdodd/auto-a11y-go/internal/config"
	"github.com/bobdodd/auto-a11y-go/internal/store"
)

// PageTask is one page to audit.
type PageTask struct {
	PageID  string
	URL     string
	Scripts []*schemas.Script
	// Buttons switches the runner to button-iteration mode when non-empty.
	Buttons []string
}

// Auditor drives one page through its states and returns the results.
// The runner-backed implementation lives in the composition root.
type Auditor interface {
	AuditPage(ctx context.Context, page schemas.Page, task PageTask) ([]*schemas.TestResult, error)
}

// NewPageFunc creates a fresh browser page for a worker.
type NewPageFunc func(ctx context.Context) (schemas.Page, error)

// Engine distributes page tasks across workers.
type Engine struct {
	cfg     *config.Config
	logger  *zap.Logger
	repo    store.Repository
	newPage NewPageFunc
	auditor Auditor
	limiter *rate.Limiter

	stateLock sync.Mutex
	isRunning bool
}

// New creates an engine. All dependencies are required.
func New(cfg *config.Config, logger *zap.Logger, repo store.Repository, newPage NewPageFunc, auditor Auditor) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if repo == nil {
		return nil, errors.New("repository cannot be nil")
	}
	if newPage == nil {
		return nil, errors.New("page factory cannot be nil")
	}
	if auditor == nil {
		return nil, errors.New("auditor cannot be nil")
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.Engine.PagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Engine.PagesPerSecond), 1)
	}

	return &Engine{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "engine")),
		repo:    repo,
		newPage: newPage,
		auditor: auditor,
		limiter: limiter,
	}, nil
}

// Run processes every task and blocks until all workers finish. Individual
// task failures are logged and do not abort the batch; only context
// cancellation stops the run early.
func (e *Engine) Run(ctx context.Context, tasks []PageTask) error {
	e.stateLock.Lock()
	if e.isRunning {
		e.stateLock.Unlock()
		return errors.New("engine is already running")
	}
	e.isRunning = true
	e.stateLock.Unlock()
	defer func() {
		e.stateLock.Lock()
		e.isRunning = false
		e.stateLock.Unlock()
	}()

	concurrency := e.cfg.Engine.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	e.logger.Info("Starting page audit batch.",
		zap.Int("tasks", len(tasks)), zap.Int("concurrency", concurrency))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if err := e.limiter.Wait(groupCtx); err != nil {
				return err
			}
			e.process(groupCtx, task)
			return nil
		})
	}

	err := g.Wait()
	e.logger.Info("Page audit batch finished.")
	return err
}

// process audits a single page and persists whatever results it produced.
func (e *Engine) process(ctx context.Context, task PageTask) {
	logger := e.logger.With(zap.String("page_id", task.PageID), zap.String("url", task.URL))

	if ctx.Err() != nil {
		logger.Warn("Context cancelled before page audit started.", zap.Error(ctx.Err()))
		return
	}

	target, err := url.Parse(task.URL)
	if err != nil || !target.IsAbs() || target.Host == "" {
		logger.Error("Task URL is not absolute, discarding.", zap.String("url", task.URL))
		return
	}

	taskTimeout := e.cfg.Engine.TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = 10 * time.Minute
	}
	taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	page, err := e.newPage(taskCtx)
	if err != nil {
		logger.Error("Could not create browser page, discarding task.", zap.Error(err))
		return
	}
	defer func() {
		if closeErr := page.Close(context.Background()); closeErr != nil {
			logger.Warn("Failed to close page.", zap.Error(closeErr))
		}
	}()

	if err := page.Navigate(taskCtx, task.URL); err != nil {
		logger.Error("Initial navigation failed, discarding task.", zap.Error(err))
		return
	}

	results, auditErr := e.auditor.AuditPage(taskCtx, page, task)
	if auditErr != nil {
		// Timeouts and cancellation still leave usable partial results;
		// anything else means the run state is unreliable.
		if errors.Is(auditErr, context.DeadlineExceeded) {
			logger.Warn("Page audit timed out, saving partial results.",
				zap.Duration("timeout", taskTimeout), zap.Error(auditErr))
		} else if errors.Is(auditErr, context.Canceled) {
			logger.Warn("Page audit cancelled, saving partial results.", zap.Error(auditErr))
		} else {
			logger.Error("Page audit failed, discarding results.", zap.Error(auditErr))
			return
		}
	}

	if len(results) == 0 {
		logger.Info("Page audit produced no results.")
		return
	}

	// Persistence gets its own deadline so a task timeout does not also
	// starve the save.
	saveCtx, cancelSave := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelSave()

	if err := e.repo.SaveResults(saveCtx, results); err != nil {
		logger.Error("Failed to persist results.", zap.Error(err))
		return
	}
	logger.Info("Page audit complete.", zap.Int("results", len(results)))
}
