// Package config loads settings for the binaries from an optional YAML file
// followed by environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"dev/bravebird/login-e2e-go/pkg/browser"
	"dev/bravebird/login-e2e-go/pkg/models"
)

// Config is the full configuration shared by every binary
type Config struct {
	Targets  []models.Target `yaml:"targets"`
	Browser  browser.Options `yaml:"browser"`
	Suite    SuiteConfig     `yaml:"suite"`
	Database DatabaseConfig  `yaml:"database"`
	Temporal TemporalConfig  `yaml:"temporal"`
	API      APIConfig       `yaml:"api"`
	Worker   WorkerConfig    `yaml:"worker"`
	LoginApp LoginAppConfig  `yaml:"loginapp"`
	Log      LogConfig       `yaml:"log"`
}

type SuiteConfig struct {
	Checks        []string            `yaml:"checks"`
	Scope         models.SessionScope `yaml:"scope"`
	WaitTimeout   time.Duration       `yaml:"wait_timeout"`
	ScreenshotDir string              `yaml:"screenshot_dir"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // mysql or sqlite
	DSN    string `yaml:"dsn"`
}

type TemporalConfig struct {
	Host      string `yaml:"host"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}

type APIConfig struct {
	Port string `yaml:"port"`
}

type WorkerConfig struct {
	// MetricsPort serves /metrics for the worker; empty disables it
	MetricsPort string `yaml:"metrics_port"`
}

// LoginAppConfig configures the demo application served by cmd/loginapp
type LoginAppConfig struct {
	BackendPort  string `yaml:"backend_port"`
	FrontendPort string `yaml:"frontend_port"`
	// APIURL is the backend address the frontend calls
	APIURL    string `yaml:"api_url"`
	JWTSecret string `yaml:"jwt_secret"`
	// UseDatabase keeps accounts in the configured database instead of memory
	UseDatabase bool `yaml:"use_database"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Default returns the configuration used when nothing else is set
func Default() Config {
	return Config{
		Targets: []models.Target{DefaultTarget()},
		Browser: browser.DefaultOptions(),
		Suite: SuiteConfig{
			Scope:         models.ScopeCheck,
			WaitTimeout:   10 * time.Second,
			ScreenshotDir: "./data/screenshots",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:login-e2e.db?_pragma=busy_timeout(5000)",
		},
		Temporal: TemporalConfig{
			Host:      "localhost:7233",
			Namespace: "default",
			TaskQueue: "login-e2e",
		},
		API:    APIConfig{Port: "8080"},
		Worker: WorkerConfig{MetricsPort: "9091"},
		LoginApp: LoginAppConfig{
			BackendPort:  "5000",
			FrontendPort: "3000",
			APIURL:       "http://localhost:5000",
			JWTSecret:    "secret-key-for-testing",
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// DefaultTarget points at a locally running demo application
func DefaultTarget() models.Target {
	return models.Target{
		Name:          "local",
		FrontendURL:   "http://localhost:3000",
		BackendURL:    "http://localhost:5000",
		Username:      "admin",
		Password:      "admin123",
		WrongPassword: "wrongpassword",
	}
}

// Load reads path when it is not empty, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if len(c.Targets) == 0 {
		c.Targets = []models.Target{DefaultTarget()}
	}
	t := &c.Targets[0]
	t.FrontendURL = getEnvOrDefault("FRONTEND_URL", t.FrontendURL)
	t.BackendURL = getEnvOrDefault("BACKEND_URL", t.BackendURL)
	t.Username = getEnvOrDefault("LOGIN_USERNAME", t.Username)
	t.Password = getEnvOrDefault("LOGIN_PASSWORD", t.Password)
	t.WrongPassword = getEnvOrDefault("LOGIN_WRONG_PASSWORD", t.WrongPassword)

	c.Browser.Driver = browser.Driver(getEnvOrDefault("BROWSER_DRIVER", string(c.Browser.Driver)))
	c.Browser.RemoteURL = getEnvOrDefault("SELENIUM_URL", c.Browser.RemoteURL)
	c.Browser.Bin = getEnvOrDefault("CHROME_BIN", c.Browser.Bin)
	if v := os.Getenv("HEADLESS"); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid HEADLESS %q: %w", v, err)
		}
		c.Browser.Headless = headless
	}

	c.Suite.Scope = models.SessionScope(getEnvOrDefault("SUITE_SCOPE", string(c.Suite.Scope)))
	c.Suite.ScreenshotDir = getEnvOrDefault("SCREENSHOT_DIR", c.Suite.ScreenshotDir)
	if v := os.Getenv("WAIT_TIMEOUT"); v != "" {
		timeout, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("invalid WAIT_TIMEOUT %q: %w", v, err)
		}
		c.Suite.WaitTimeout = timeout
	}

	// MYSQL_DSN alone implies the mysql driver, as the api server always had it
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" && os.Getenv("DB_DRIVER") == "" {
		c.Database.Driver = "mysql"
		c.Database.DSN = dsn
	}
	c.Database.Driver = getEnvOrDefault("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnvOrDefault("DB_DSN", c.Database.DSN)

	c.Temporal.Host = getEnvOrDefault("TEMPORAL_HOST", c.Temporal.Host)
	c.Temporal.Namespace = getEnvOrDefault("TEMPORAL_NAMESPACE", c.Temporal.Namespace)
	c.Temporal.TaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", c.Temporal.TaskQueue)

	c.API.Port = getEnvOrDefault("PORT", c.API.Port)
	c.Worker.MetricsPort = getEnvOrDefault("WORKER_METRICS_PORT", c.Worker.MetricsPort)

	c.LoginApp.BackendPort = getEnvOrDefault("BACKEND_PORT", c.LoginApp.BackendPort)
	c.LoginApp.FrontendPort = getEnvOrDefault("FRONTEND_PORT", c.LoginApp.FrontendPort)
	c.LoginApp.APIURL = getEnvOrDefault("API_URL", c.LoginApp.APIURL)
	c.LoginApp.JWTSecret = getEnvOrDefault("JWT_SECRET", c.LoginApp.JWTSecret)
	if v := os.Getenv("LOGINAPP_USE_DATABASE"); v != "" {
		useDB, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LOGINAPP_USE_DATABASE %q: %w", v, err)
		}
		c.LoginApp.UseDatabase = useDB
	}

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)
	return nil
}

// Validate rejects settings no binary can run with
func (c *Config) Validate() error {
	var errs []error

	if len(c.Targets) == 0 {
		errs = append(errs, errors.New("at least one target is required"))
	}
	names := make(map[string]bool)
	for i, t := range c.Targets {
		if err := validateURL(t.FrontendURL); err != nil {
			errs = append(errs, fmt.Errorf("targets[%d].frontend_url: %w", i, err))
		}
		if err := validateURL(t.BackendURL); err != nil {
			errs = append(errs, fmt.Errorf("targets[%d].backend_url: %w", i, err))
		}
		if t.Name != "" {
			if names[t.Name] {
				errs = append(errs, fmt.Errorf("targets[%d]: duplicate name %q", i, t.Name))
			}
			names[t.Name] = true
		}
	}

	if !c.Browser.Driver.Valid() {
		errs = append(errs, fmt.Errorf("browser.driver: unknown driver %q", c.Browser.Driver))
	}
	if !c.Suite.Scope.Valid() {
		errs = append(errs, fmt.Errorf("suite.scope: unknown scope %q", c.Suite.Scope))
	}
	if c.Suite.WaitTimeout <= 0 {
		errs = append(errs, errors.New("suite.wait_timeout must be positive"))
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Target returns the target with name, or the first target when name is empty
func (c *Config) Target(name string) (models.Target, error) {
	if name == "" {
		return c.Targets[0], nil
	}
	for _, t := range c.Targets {
		if t.Name == name {
			return t, nil
		}
	}
	return models.Target{}, fmt.Errorf("unknown target %q", name)
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme in %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

// parseTimeout accepts a Go duration or a plain number of seconds
func parseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
