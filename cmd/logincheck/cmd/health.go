package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"dev/bravebird/login-e2e-go/pkg/models"
	"dev/bravebird/login-e2e-go/pkg/suite"
)

func newHealthCommand(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Args:  cobra.NoArgs,
		Use:   "health",
		Short: "Check that the backend health endpoint answers OK",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := root.load()
			if err != nil {
				return err
			}
			defer e.log.Sync()
			return runHealth(cmd.Context(), cmd, e)
		},
	}
}

func runHealth(ctx context.Context, cmd *cobra.Command, e *env) error {
	checks, err := suite.Lookup([]string{suite.CheckBackendHealth})
	if err != nil {
		return err
	}

	runner := suite.NewRunner(nil, e.target,
		suite.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}),
		suite.WithLogger(e.log))
	result := runner.RunCheck(ctx, nil, checks[0])

	if result.Status != models.StatusSuccess {
		return fmt.Errorf("%s: %s", e.target.BackendURL, result.Message)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is healthy\n", e.target.BackendURL)
	return nil
}
