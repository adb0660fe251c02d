package main

import (
	"context"
	"fmt"
	"os"

	"fitbuddy/internal/app"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "fitbuddy",
	Short: "Scheduled notifications for the fitness assistant bot",
	Long: `fitbuddy runs the recurring jobs of the fitness assistant: motivational
messages, the evening check-in, the morning routine and the weekly run summary.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.json", "path to config file (json or yaml)")
}

// withApp builds the app for a one-shot command and releases it afterwards.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.NewApp(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}
