// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
	"github.com/bobdodd/auto-a11y-go/internal/config"
)

// ConnState tracks the manager's explicit lifecycle state machine:
// Connected -> Restarting -> Connected, or Connected -> Failed when the
// bounded retry budget is exhausted.
type ConnState string

const (
	StateConnected  ConnState = "connected"
	StateRestarting ConnState = "restarting"
	StateFailed     ConnState = "failed"
)

// Manager owns the headless browser process and creates pages from it.
// It is the only component aware of browser-lifecycle recovery.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	// parentCtx outlives individual browser processes so the allocator can
	// be rebuilt on restart.
	parentCtx context.Context

	mu          sync.Mutex
	state       ConnState
	allocCtx    context.Context
	allocCancel context.CancelFunc
	restarts    int
}

var _ schemas.BrowserLifecycle = (*Manager)(nil)

// NewManager launches the browser process and verifies it responds.
func NewManager(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*Manager, error) {
	m := &Manager{
		logger:    logger.Named("browser_manager"),
		cfg:       cfg,
		parentCtx: ctx,
	}
	if err := m.launch(); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	m.state = StateConnected
	return m, nil
}

// launch prepares allocator options and starts the headless browser process.
// Callers must hold no assumptions about m.state; launch overwrites the
// allocator fields.
func (m *Manager) launch() error {
	m.logger.Info("Initializing browser allocator...")

	allocCtx, cancel := chromedp.NewExecAllocator(m.parentCtx, m.buildAllocatorOptions()...)

	// Verify the browser starts and is responsive before handing it out.
	testCtx, cancelTest := context.WithTimeout(allocCtx, 30*time.Second)
	testCtx, cancelTestCtx := chromedp.NewContext(testCtx)
	defer cancelTestCtx()
	defer cancelTest()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.allocCtx = allocCtx
	m.allocCancel = cancel
	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// buildAllocatorOptions assembles the flags for a stable headless instance.
func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("headless", m.cfg.Browser.Headless),
		chromedp.Flag("ignore-certificate-errors", m.cfg.Browser.IgnoreTLSErrors),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", m.cfg.Browser.Headless),
	)

	// Custom arguments from config.yaml.
	for _, arg := range m.cfg.Browser.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Flags required for running inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// NewPage creates a fresh browser tab owned exclusively by the caller.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	m.mu.Lock()
	state := m.state
	allocCtx := m.allocCtx
	m.mu.Unlock()

	if state != StateConnected {
		return nil, fmt.Errorf("browser is %s, cannot create page", state)
	}
	return newPage(allocCtx, m.logger, m.cfg)
}

// State returns the current lifecycle state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Restart tears down the browser process and brings up a fresh one, retrying
// up to the configured bound. On success it returns a new pristine page; the
// caller's old page is dead and must be discarded. Restart doubles as the
// cookie/storage clearing primitive: a new process carries no residual state.
func (m *Manager) Restart(ctx context.Context) (schemas.Page, schemas.RestartOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateFailed {
		return nil, schemas.RestartOutcome{
			Status: schemas.RestartUnrecoverable,
			Err:    fmt.Errorf("browser already marked unrecoverable"),
		}
	}

	m.state = StateRestarting
	m.logger.Warn("Restarting browser process.", zap.Int("previous_restarts", m.restarts))

	if m.allocCancel != nil {
		m.allocCancel()
	}

	maxAttempts := m.cfg.Browser.MaxRestarts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		if err := m.launch(); err != nil {
			lastErr = err
			m.logger.Warn("Browser relaunch attempt failed.",
				zap.Int("attempt", attempt), zap.Error(err))
			select {
			case <-time.After(m.cfg.Browser.RestartBackoff):
			case <-ctx.Done():
			}
			continue
		}

		page, err := newPage(m.allocCtx, m.logger, m.cfg)
		if err != nil {
			lastErr = err
			continue
		}

		m.state = StateConnected
		m.restarts++
		m.logger.Info("Browser restarted.", zap.Int("attempt", attempt))
		return page, schemas.RestartOutcome{Status: schemas.RestartRecovered, Attempts: attempt}
	}

	m.state = StateFailed
	m.logger.Error("Browser restart exhausted retry budget.", zap.Error(lastErr))
	return nil, schemas.RestartOutcome{
		Status:   schemas.RestartUnrecoverable,
		Attempts: maxAttempts,
		Err:      lastErr,
	}
}

// Shutdown terminates the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.allocCancel == nil {
		return nil
	}
	m.logger.Info("Shutting down browser process...")
	m.allocCancel()

	select {
	case <-m.allocCtx.Done():
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded waiting for browser termination.", zap.Error(ctx.Err()))
	}
	m.allocCancel = nil
	return nil
}
