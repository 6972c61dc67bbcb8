package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/paywall/config"
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Print the pricing policy in force",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		policy, err := cfg.Policy()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "policy %s\n", policy.Version())
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ROLE\tPRODUCT\tPRICE\tQUOTA\tPRO ACCESS")
		for _, e := range policy.Entries() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\n", e.Role, e.Product, e.Amount, e.Delta.Quota, e.Delta.ProAccess)
		}
		return tw.Flush()
	},
}
