// Package cmd implements the logincheck command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dev/bravebird/login-e2e-go/pkg/browser"
	"dev/bravebird/login-e2e-go/pkg/config"
	"dev/bravebird/login-e2e-go/pkg/models"
)

type rootFlags struct {
	configPath string
	target     string
	driver     string
	remoteURL  string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:          "logincheck",
		Short:        "Check a login page end to end",
		Long:         "logincheck drives a browser against a login page and its backend and reports which checks pass.",
		SilenceUsage: true, // do not print usage message when commands fail
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a YAML config file (default: $CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&flags.target, "target", "", "Name of the configured target (default: the first one)")
	cmd.PersistentFlags().StringVar(&flags.driver, "driver", "", "Browser driver: rod, webdriver or http")
	cmd.PersistentFlags().StringVar(&flags.remoteURL, "remote-url", "", "Selenium hub or DevTools URL")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (default: $LOG_LEVEL or info)")

	cmd.AddCommand(
		newRunCommand(flags),
		newLoginCommand(flags),
		newHealthCommand(flags),
		newChecksCommand(),
	)
	return cmd
}

// Execute runs the command line. This is called by main.main().
func Execute() error {
	return newRootCommand().Execute()
}

// env is what every subcommand starts from
type env struct {
	cfg    *config.Config
	target models.Target
	log    *zap.Logger
}

func (f *rootFlags) load() (*env, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.driver != "" {
		cfg.Browser.Driver = browser.Driver(f.driver)
		if !cfg.Browser.Driver.Valid() {
			return nil, fmt.Errorf("unknown driver %q", f.driver)
		}
	}
	if f.remoteURL != "" {
		cfg.Browser.RemoteURL = f.remoteURL
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}

	target, err := cfg.Target(f.target)
	if err != nil {
		return nil, err
	}
	log, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, target: target, log: log}, nil
}
