package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"fitbuddy/internal/app"

	"github.com/spf13/cobra"
)

var jsonOut bool

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List configured jobs and their triggers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			st := a.Snapshot()
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st.Scheduler)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tTRIGGER\tOVERLAP")
			for _, j := range st.Scheduler.Jobs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", j.ID, j.Trigger, j.Overlap)
			}
			return w.Flush()
		})
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run one job now, outside the schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			return a.RunJob(cmd.Context(), args[0])
		})
	},
}

func init() {
	jobsCmd.Flags().BoolVar(&jsonOut, "json", false, "print as JSON")
	jobsCmd.AddCommand(jobsRunCmd)
	rootCmd.AddCommand(jobsCmd)
}
