// File: cmd/audit.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
	"github.com/bobdodd/auto-a11y-go/internal/browser"
	"github.com/bobdodd/auto-a11y-go/internal/config"
	"github.com/bobdodd/auto-a11y-go/internal/engine"
	"github.com/bobdodd/auto-a11y-go/internal/executor"
	"github.com/bobdodd/auto-a11y-go/internal/matrix"
	"github.com/bobdodd/auto-a11y-go/internal/observability"
	"github.com/bobdodd/auto-a11y-go/internal/runner"
	"github.com/bobdodd/auto-a11y-go/internal/session"
	"github.com/bobdodd/auto-a11y-go/internal/store"
	"github.com/bobdodd/auto-a11y-go/internal/validator"
)

// newAuditCmd creates and configures the `audit` command.
func newAuditCmd() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit [urls...]",
		Short: "Audits the given pages across their dynamic states",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind only changed flags so unset flag defaults do not shadow
			// config file and env values.
			if cmd.Flags().Changed("concurrency") {
				if err := viper.BindPFlag("engine.concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("output") {
				if err := viper.BindPFlag("store.file", cmd.Flags().Lookup("output")); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg := appCfg
			if cmd.Flags().Changed("concurrency") || cmd.Flags().Changed("output") {
				// Flag overrides were bound in PreRunE; re-resolve the config.
				refreshed, err := config.NewConfigFromViper(viper.GetViper())
				if err != nil {
					return err
				}
				cfg = refreshed
			}

			scriptsPath, _ := cmd.Flags().GetString("scripts")
			buttons, _ := cmd.Flags().GetStringSlice("buttons")
			useMatrix, _ := cmd.Flags().GetBool("matrix")
			reloadBetween, _ := cmd.Flags().GetBool("reload-between-buttons")
			envVars, _ := cmd.Flags().GetStringToString("env")

			var scripts []*schemas.Script
			if scriptsPath != "" {
				loaded, err := loadScripts(scriptsPath)
				if err != nil {
					return fmt.Errorf("failed to load scripts: %w", err)
				}
				scripts = loaded
				logger.Info("Scripts loaded", zap.Int("count", len(scripts)), zap.String("path", scriptsPath))
			}
			if useMatrix && len(scripts) == 0 {
				return errors.New("--matrix requires --scripts")
			}

			targets := normalizeTargets(args)
			logger.Info("Starting audit",
				zap.Strings("targets", targets),
				zap.Int("scripts", len(scripts)),
				zap.Int("buttons", len(buttons)),
				zap.Bool("matrix", useMatrix),
			)

			components, err := initializeAuditComponents(ctx, cfg, logger, auditOptions{
				useMatrix:     useMatrix,
				reloadBetween: reloadBetween,
				envVars:       envVars,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize audit components: %w", err)
			}
			defer components.Shutdown()

			tasks := make([]engine.PageTask, len(targets))
			for i, target := range targets {
				tasks[i] = engine.PageTask{
					PageID:  uuid.New().String(),
					URL:     target,
					Scripts: scripts,
					Buttons: buttons,
				}
			}

			if err := components.Engine.Run(ctx, tasks); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Audit aborted")
					return errors.New("audit aborted by signal")
				}
				return err
			}

			fmt.Printf("\nAudit complete. Session ID: %s\n", components.Session.SessionID())
			return nil
		},
	}

	auditCmd.Flags().StringP("scripts", "s", "", "Path to a JSON file of setup scripts.")
	auditCmd.Flags().StringSlice("buttons", nil, "Button selectors for button-iteration mode.")
	auditCmd.Flags().Bool("matrix", false, "Visit every enabled state-matrix combination instead of plain script order.")
	auditCmd.Flags().Bool("reload-between-buttons", false, "Reload the page before each button click.")
	auditCmd.Flags().StringToString("env", nil, "Substitutions for ${ENV:NAME} tokens, e.g. --env USERNAME=alice.")
	auditCmd.Flags().IntP("concurrency", "j", 0, "Number of pages audited concurrently. (Overrides config/env)")
	auditCmd.Flags().StringP("output", "o", "", "Results file path for the file backend. (Overrides config/env)")

	return auditCmd
}

type auditOptions struct {
	useMatrix     bool
	reloadBetween bool
	envVars       map[string]string
}

// auditComponents holds initialized services.
type auditComponents struct {
	logger  *zap.Logger
	Browser *browser.Manager
	Session *session.Manager
	Repo    store.Repository
	Engine  *engine.Engine
}

// Shutdown gracefully closes all components.
func (c *auditComponents) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if c.Browser != nil {
		if err := c.Browser.Shutdown(shutdownCtx); err != nil {
			c.logger.Warn("Error during browser shutdown", zap.Error(err))
		}
	}
	if c.Repo != nil {
		if err := c.Repo.Close(shutdownCtx); err != nil {
			c.logger.Warn("Error closing result store", zap.Error(err))
		}
	}
}

// initializeAuditComponents handles dependency injection.
func initializeAuditComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts auditOptions) (*auditComponents, error) {
	components := &auditComponents{logger: logger}

	repo, err := newRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	components.Repo = repo

	mgr, err := browser.NewManager(ctx, logger, cfg)
	if err != nil {
		components.Shutdown()
		return nil, err
	}
	components.Browser = mgr

	components.Session = session.NewManager(logger)
	exec := executor.New(logger, cfg)
	val := validator.New(logger)

	run := runner.New(logger, cfg, exec, val, components.Session, recordPageCallback,
		runner.WithLifecycle(mgr),
		runner.WithEnvVars(opts.envVars),
	)

	auditor := &runnerAuditor{
		logger:        logger,
		runner:        run,
		useMatrix:     opts.useMatrix,
		reloadBetween: opts.reloadBetween,
	}

	eng, err := engine.New(cfg, logger, repo, func(ctx context.Context) (schemas.Page, error) {
		return mgr.NewPage(ctx)
	}, auditor)
	if err != nil {
		components.Shutdown()
		return nil, err
	}
	components.Engine = eng
	return components, nil
}

// newRepository selects the persistence backend from config. For the
// postgres backend, closing the repository also closes the pool.
func newRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Repository, error) {
	switch cfg.Store.Backend {
	case "none":
		return store.NopStore{}, nil
	case "file":
		return store.NewFileStore(cfg.Store.File, logger)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		repo, err := store.New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// runnerAuditor adapts the multi-state runner to the engine's per-page
// audit contract, picking the visiting strategy from the task and flags.
type runnerAuditor struct {
	logger        *zap.Logger
	runner        *runner.Runner
	useMatrix     bool
	reloadBetween bool
}

func (a *runnerAuditor) AuditPage(ctx context.Context, page schemas.Page, task engine.PageTask) ([]*schemas.TestResult, error) {
	switch {
	case len(task.Buttons) > 0:
		return a.runner.RunButtons(ctx, page, task.PageID, task.URL, task.Buttons, a.reloadBetween)
	case a.useMatrix:
		m := matrix.New(a.logger, task.Scripts)
		return a.runner.RunMatrix(ctx, page, task.PageID, task.URL, task.Scripts, m)
	default:
		return a.runner.RunScripts(ctx, page, task.PageID, task.URL, task.Scripts)
	}
}

// recordPageCallback is the default injected test callback. It records the
// page identity per visited state; actual accessibility rule checking is
// supplied by embedders through their own callback.
func recordPageCallback(ctx context.Context, page schemas.Page, pageID string) (*schemas.TestResult, error) {
	title, err := page.Title(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page title: %w", err)
	}
	return &schemas.TestResult{
		PageID: pageID,
		Title:  title,
	}, nil
}

// loadScripts parses an operator-authored scripts file.
func loadScripts(path string) ([]*schemas.Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scripts []*schemas.Script
	if err := json.Unmarshal(data, &scripts); err != nil {
		return nil, fmt.Errorf("invalid scripts file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(scripts))
	for _, s := range scripts {
		if s.ID == "" {
			return nil, fmt.Errorf("script %q has no id", s.Name)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("duplicate script id %q", s.ID)
		}
		seen[s.ID] = struct{}{}

		sort.SliceStable(s.Steps, func(i, j int) bool {
			return s.Steps[i].StepNumber < s.Steps[j].StepNumber
		})
	}
	return scripts, nil
}

// normalizeTargets ensures every target has a scheme.
func normalizeTargets(args []string) []string {
	out := make([]string, len(args))
	for i, target := range args {
		if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
			target = "https://" + target
		}
		out[i] = target
	}
	return out
}
