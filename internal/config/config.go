// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Runner   RunnerConfig   `mapstructure:"runner" yaml:"runner"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
}

// LoggerConfig controls the zap logger and its optional rotating file sink.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig tunes the headless browser process.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	DisableCache    bool     `mapstructure:"disable_cache" yaml:"disable_cache"`
	Args            []string `mapstructure:"args" yaml:"args"`

	// MaxRestarts bounds the Connected -> Restarting -> Connected recovery
	// loop before the manager reports the browser unrecoverable.
	MaxRestarts    int           `mapstructure:"max_restarts" yaml:"max_restarts"`
	RestartBackoff time.Duration `mapstructure:"restart_backoff" yaml:"restart_backoff"`
}

// NetworkConfig tunes navigation and settling behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	IdleQuietPeriod   time.Duration `mapstructure:"idle_quiet_period" yaml:"idle_quiet_period"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// ExecutorConfig tunes script-step execution.
type ExecutorConfig struct {
	DefaultStepTimeout time.Duration `mapstructure:"default_step_timeout" yaml:"default_step_timeout"`
	ScreenshotDir      string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	DebugScreenshots   bool          `mapstructure:"debug_screenshots" yaml:"debug_screenshots"`
}

// RunnerConfig tunes the multi-state test runner.
type RunnerConfig struct {
	// SettleDelay is how long button-iteration mode waits after a click
	// before testing the resulting state.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// EngineConfig tunes the concurrent page-audit engine.
type EngineConfig struct {
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	TaskTimeout time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
	// PagesPerSecond throttles how quickly new page audits start.
	PagesPerSecond float64 `mapstructure:"pages_per_second" yaml:"pages_per_second"`
}

// StoreConfig selects where decorated test results are persisted.
type StoreConfig struct {
	// Backend is one of "none", "file" or "postgres".
	Backend  string         `mapstructure:"backend" yaml:"backend"`
	File     string         `mapstructure:"file" yaml:"file"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds the connection details for a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN assembles a pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "a11y-audit")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.max_restarts", 2)
	v.SetDefault("browser.restart_backoff", "2s")

	// -- Network --
	v.SetDefault("network.navigation_timeout", "60s")
	v.SetDefault("network.post_load_wait", "1s")
	v.SetDefault("network.idle_quiet_period", "500ms")
	v.SetDefault("network.idle_timeout", "30s")

	// -- Executor --
	v.SetDefault("executor.default_step_timeout", "10s")
	v.SetDefault("executor.screenshot_dir", "~/.a11y-audit/screenshots")
	v.SetDefault("executor.debug_screenshots", false)

	// -- Runner --
	v.SetDefault("runner.settle_delay", "750ms")

	// -- Engine --
	v.SetDefault("engine.concurrency", 4)
	v.SetDefault("engine.task_timeout", "10m")
	v.SetDefault("engine.pages_per_second", 1.0)

	// -- Store --
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.file", "a11y-results.jsonl")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "postgres")
	v.SetDefault("store.postgres.password", "")
	v.SetDefault("store.postgres.dbname", "a11y_audit")
	v.SetDefault("store.postgres.sslmode", "disable")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("store.postgres.password", "A11Y_STORE_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in user-supplied paths.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Executor.ScreenshotDir, &c.Logger.LogFile, &c.Store.File} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be a positive integer")
	}
	if c.Browser.MaxRestarts < 0 {
		return fmt.Errorf("browser.max_restarts must not be negative")
	}
	if c.Executor.DefaultStepTimeout <= 0 {
		return fmt.Errorf("executor.default_step_timeout must be a positive duration")
	}
	switch c.Store.Backend {
	case "none", "file", "postgres":
	default:
		return fmt.Errorf("store.backend must be one of none, file, postgres (got %q)", c.Store.Backend)
	}
	if c.Store.Backend == "file" && c.Store.File == "" {
		return fmt.Errorf("store.file is required when store.backend is file")
	}
	return nil
}
