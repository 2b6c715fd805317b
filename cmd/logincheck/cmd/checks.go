package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dev/bravebird/login-e2e-go/pkg/suite"
)

func newChecksCommand() *cobra.Command {
	return &cobra.Command{
		Args:  cobra.NoArgs, // do not accept positional arguments for this command
		Use:   "checks",
		Short: "List the available checks in execution order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tBROWSER\tDESCRIPTION")
			for _, c := range suite.Checks() {
				fmt.Fprintf(w, "%s\t%t\t%s\n", c.Name, c.NeedsBrowser, c.Description)
			}
			return w.Flush()
		},
	}
}
