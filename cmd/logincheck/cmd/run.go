package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dev/bravebird/login-e2e-go/pkg/browser"
	"dev/bravebird/login-e2e-go/pkg/database"
	"dev/bravebird/login-e2e-go/pkg/models"
	"dev/bravebird/login-e2e-go/pkg/suite"
)

type runFlags struct {
	checks      []string
	scope       string
	screenshots string
	output      string
	record      bool
}

func newRunCommand(root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Args:  cobra.NoArgs,
		Use:   "run",
		Short: "Run the login checks and exit non-zero if any fails",
	}

	cmd.Flags().StringSliceVar(&flags.checks, "checks", nil, "Comma separated checks to run (default: all)")
	cmd.Flags().StringVar(&flags.scope, "scope", "", "Session scope: check or suite (default: from config)")
	cmd.Flags().StringVar(&flags.screenshots, "screenshots", "", "Directory for failure screenshots (default: from config)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&flags.record, "record", false, "Store the run in the configured database")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if flags.output != "text" && flags.output != "json" {
			return fmt.Errorf("unknown output format %q", flags.output)
		}
		e, err := root.load()
		if err != nil {
			return err
		}
		defer e.log.Sync()
		return runSuite(cmd.Context(), cmd.OutOrStdout(), e, flags)
	}
	return cmd
}

func runSuite(ctx context.Context, out io.Writer, e *env, flags *runFlags) error {
	names := flags.checks
	if len(names) == 0 {
		names = e.cfg.Suite.Checks
	}
	checks, err := suite.Lookup(names)
	if err != nil {
		return err
	}

	scope := e.cfg.Suite.Scope
	if flags.scope != "" {
		scope = models.SessionScope(flags.scope)
		if !scope.Valid() {
			return fmt.Errorf("unknown scope %q", flags.scope)
		}
	}
	screenshots := e.cfg.Suite.ScreenshotDir
	if flags.screenshots != "" {
		screenshots = flags.screenshots
	}

	opts := []suite.RunnerOption{
		suite.WithScope(scope),
		suite.WithTimeout(e.cfg.Suite.WaitTimeout),
		suite.WithLogger(e.log),
		suite.WithScreenshots(screenshots),
	}

	var rec *recorder
	if flags.record {
		rec, err = newRecorder(ctx, e, scope)
		if err != nil {
			return err
		}
		defer rec.close()
		opts = append(opts, suite.WithObserver(rec))
	}

	runner := suite.NewRunner(browser.NewOpener(e.cfg.Browser, e.log.Named("browser")), e.target, opts...)
	result, runErr := runner.Run(ctx, checks)
	if rec != nil {
		result.RunID = rec.run.ID
		rec.finish(result)
	}

	if flags.output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else if err := printResult(out, e.target, result); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if !result.Passed() {
		return fmt.Errorf("%d of %d checks failed", countFailed(result), len(result.CheckResults))
	}
	return nil
}

func printResult(out io.Writer, target models.Target, result models.SuiteResult) error {
	fmt.Fprintf(out, "%s (backend %s)\n", target.FrontendURL, target.BackendURL)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, cr := range result.CheckResults {
		status := "PASS"
		if cr.Status != models.StatusSuccess {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%s\t%dms\t%s\n", status, cr.Check, cr.Duration, cr.Message)
		if cr.ScreenshotPath != "" {
			fmt.Fprintf(w, "\t\t\tscreenshot: %s\n", cr.ScreenshotPath)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: %d checks in %dms\n", result.Status, len(result.CheckResults), result.TotalDuration)
	return nil
}

func countFailed(result models.SuiteResult) int {
	n := 0
	for _, cr := range result.CheckResults {
		if cr.Status == models.StatusFailed {
			n++
		}
	}
	return n
}

// recorder stores a CLI run and its results as they arrive
type recorder struct {
	ctx context.Context
	db  *database.DB
	run *models.SuiteRun
	log *zap.Logger
}

func newRecorder(ctx context.Context, e *env, scope models.SessionScope) (*recorder, error) {
	db, err := database.New(e.cfg.Database.Driver, e.cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	run := &models.SuiteRun{
		TargetName:  e.target.Name,
		FrontendURL: e.target.FrontendURL,
		BackendURL:  e.target.BackendURL,
		Scope:       scope,
		Status:      models.StatusRunning,
	}
	if err := db.CreateSuiteRun(ctx, run); err != nil {
		db.Close()
		return nil, err
	}
	return &recorder{ctx: ctx, db: db, run: run, log: e.log}, nil
}

func (r *recorder) ObserveCheck(result models.CheckResult) {
	result.RunID = r.run.ID
	if err := r.db.CreateCheckResult(r.ctx, &result); err != nil {
		r.log.Warn("failed to record check", zap.String("check", result.Check), zap.Error(err))
	}
}

func (r *recorder) finish(result models.SuiteResult) {
	msg := result.ErrorMessage
	if msg == "" && result.Status == models.StatusFailed {
		msg = fmt.Sprintf("%d of %d checks failed", countFailed(result), len(result.CheckResults))
	}
	// the run context may already be canceled
	if err := r.db.UpdateSuiteRunStatus(context.Background(), r.run.ID, result.Status, msg); err != nil {
		r.log.Warn("failed to record run status", zap.Error(err))
	}
}

func (r *recorder) close() {
	r.db.Close()
}
