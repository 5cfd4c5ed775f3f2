package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/strategies"
)

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the available strategies and their default parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDEFAULTS\tDESCRIPTION")
			for _, n := range strategies.Names() {
				info, _ := strategies.Describe(n)
				defaults := info.Defaults.String()
				if defaults == "" {
					defaults = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name, defaults, info.Description)
			}
			return tw.Flush()
		},
	}
}
