package main

import (
	"fmt"
	"strconv"

	"fitbuddy/internal/app"

	"github.com/spf13/cobra"
)

var recipientsCmd = &cobra.Command{
	Use:   "recipients",
	Short: "List registered chat ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			ids, err := a.Store().ListRecipientIDs(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		})
	},
}

var recipientsAddCmd = &cobra.Command{
	Use:   "add <chat_id>...",
	Short: "Register chat ids as broadcast recipients",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("chat id %q: %w", arg, err)
			}
			ids = append(ids, id)
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			for _, id := range ids {
				if err := a.Store().AddRecipient(cmd.Context(), id); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d recipient(s)\n", len(ids))
			return nil
		})
	},
}

func init() {
	recipientsCmd.AddCommand(recipientsAddCmd)
	rootCmd.AddCommand(recipientsCmd)
}
