package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dugoutdata/dugout/internal/observability"
	"github.com/dugoutdata/dugout/internal/output"
)

var limitsFormat string

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Show effective rate budgets, retry settings and cache TTLs",
	Long: `Show the budgets each upstream runs with after rate_limit_margin is applied,
the retry settings of its client and the cache TTL of every data category.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(limitsFormat)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, observability.CLILogger)
		if err != nil {
			return err
		}
		view, err := a.limits()
		if err != nil {
			return err
		}
		rendered, err := output.Render(format, view)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	},
}

func init() {
	rootCmd.AddCommand(limitsCmd)
	limitsCmd.Flags().StringVarP(&limitsFormat, "output", "o", "table", "Output format: table, json, markdown, yaml")
}
