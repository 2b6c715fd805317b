package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/login-e2e-go/pkg/browser"
	"dev/bravebird/login-e2e-go/pkg/models"
)

// clearEnv unsets every variable Load reads so the host environment cannot
// leak into a test
func clearEnv(t *testing.T) {
	for _, key := range []string{
		"CONFIG_FILE", "FRONTEND_URL", "BACKEND_URL", "LOGIN_USERNAME", "LOGIN_PASSWORD",
		"LOGIN_WRONG_PASSWORD", "BROWSER_DRIVER", "SELENIUM_URL", "CHROME_BIN", "HEADLESS",
		"SUITE_SCOPE", "SCREENSHOT_DIR", "WAIT_TIMEOUT", "MYSQL_DSN", "DB_DRIVER", "DB_DSN",
		"TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE", "PORT", "BACKEND_PORT",
		"FRONTEND_PORT", "API_URL", "JWT_SECRET", "LOG_LEVEL", "LOG_FORMAT", "WORKER_METRICS_PORT",
		"LOGINAPP_USE_DATABASE",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, "http://localhost:3000", cfg.Targets[0].FrontendURL)
	assert.Equal(t, browser.DriverRod, cfg.Browser.Driver)
	assert.Equal(t, models.ScopeCheck, cfg.Suite.Scope)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
targets:
  - name: docker
    frontend_url: http://frontend:3000
    backend_url: http://backend:5000
    username: usuario
    password: usuario123
    wrong_password: nope
  - name: staging
    frontend_url: https://staging.example.com
    backend_url: https://api.staging.example.com
browser:
  driver: webdriver
  remote_url: http://selenium:4444/wd/hub
  maximize: true
suite:
  scope: suite
  wait_timeout: 15s
  checks: [backend_health, logout]
database:
  driver: mysql
  dsn: user:pass@tcp(db:3306)/e2e
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Targets, 2)
	assert.Equal(t, "usuario", cfg.Targets[0].Username)
	assert.Equal(t, browser.DriverWebDriver, cfg.Browser.Driver)
	assert.True(t, cfg.Browser.Maximize)
	// keys absent from the file keep their defaults
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.WindowWidth)
	assert.Equal(t, models.ScopeSuite, cfg.Suite.Scope)
	assert.Equal(t, 15*time.Second, cfg.Suite.WaitTimeout)
	assert.Equal(t, []string{"backend_health", "logout"}, cfg.Suite.Checks)
	assert.Equal(t, "mysql", cfg.Database.Driver)

	staging, err := cfg.Target("staging")
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com", staging.FrontendURL)

	first, err := cfg.Target("")
	require.NoError(t, err)
	assert.Equal(t, "docker", first.Name)

	_, err = cfg.Target("prod")
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FRONTEND_URL", "http://frontend:3000")
	t.Setenv("BACKEND_URL", "http://backend:5000")
	t.Setenv("LOGIN_PASSWORD", "s3cret")
	t.Setenv("BROWSER_DRIVER", "http")
	t.Setenv("HEADLESS", "false")
	t.Setenv("WAIT_TIMEOUT", "3")
	t.Setenv("SUITE_SCOPE", "suite")
	t.Setenv("MYSQL_DSN", "automator:automator@tcp(localhost:3306)/automator")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOGINAPP_USE_DATABASE", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://frontend:3000", cfg.Targets[0].FrontendURL)
	assert.Equal(t, "http://backend:5000", cfg.Targets[0].BackendURL)
	assert.Equal(t, "s3cret", cfg.Targets[0].Password)
	assert.Equal(t, "admin", cfg.Targets[0].Username)
	assert.Equal(t, browser.DriverHTTP, cfg.Browser.Driver)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 3*time.Second, cfg.Suite.WaitTimeout)
	assert.Equal(t, models.ScopeSuite, cfg.Suite.Scope)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "automator:automator@tcp(localhost:3306)/automator", cfg.Database.DSN)
	assert.Equal(t, "9090", cfg.API.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.LoginApp.UseDatabase)
}

func TestLoadConfigFileFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeConfig(t, "api:\n  port: \"7000\"\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.API.Port)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		file    string
		wantErr string
	}{
		{name: "missing file", file: "/does/not/exist.yaml", wantErr: "read config file"},
		{name: "bad headless", env: map[string]string{"HEADLESS": "maybe"}, wantErr: "invalid HEADLESS"},
		{name: "bad use database", env: map[string]string{"LOGINAPP_USE_DATABASE": "perhaps"}, wantErr: "invalid LOGINAPP_USE_DATABASE"},
		{name: "bad timeout", env: map[string]string{"WAIT_TIMEOUT": "soon"}, wantErr: "invalid WAIT_TIMEOUT"},
		{name: "unknown driver", env: map[string]string{"BROWSER_DRIVER": "lynx"}, wantErr: `unknown driver "lynx"`},
		{name: "unknown scope", env: map[string]string{"SUITE_SCOPE": "module"}, wantErr: `unknown scope "module"`},
		{name: "bad frontend url", env: map[string]string{"FRONTEND_URL": "ftp://x"}, wantErr: "targets[0].frontend_url"},
		{name: "unknown db driver", env: map[string]string{"DB_DRIVER": "postgres"}, wantErr: `database.driver`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.file)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateDuplicateTargets(t *testing.T) {
	cfg := Default()
	cfg.Targets = append(cfg.Targets, cfg.Targets[0])

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate name "local"`)
}

func TestNewLogger(t *testing.T) {
	log, err := LogConfig{Level: "debug", Format: "json"}.NewLogger()
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(-1))

	_, err = LogConfig{Level: "loud", Format: "console"}.NewLogger()
	assert.Error(t, err)
}
