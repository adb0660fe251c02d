package main

import (
	"fmt"

	"fitbuddy/internal/app"
	"fitbuddy/internal/config"

	"github.com/spf13/cobra"
)

var sendSummary bool

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print last week's run summary, optionally broadcasting it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			text, err := a.Summary(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			if !sendSummary {
				return nil
			}
			res, err := a.Broadcast(cmd.Context(), config.JobWeeklySummary, text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nsent: %d/%d (failed %d)\n", res.Succeeded, res.Attempted, res.Failed)
			return nil
		})
	},
}

func init() {
	summaryCmd.Flags().BoolVar(&sendSummary, "send", false, "broadcast the summary to every recipient")
	rootCmd.AddCommand(summaryCmd)
}
