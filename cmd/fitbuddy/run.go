package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fitbuddy/internal/app"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
)

var stopTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := app.NewApp(ctx, cfgPath)
		if err != nil {
			return err
		}
		if err := a.Start(ctx); err != nil {
			_ = a.Close()
			return err
		}
		// No-op outside systemd (NOTIFY_SOCKET unset).
		_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

		reason := app.StopSignal
		select {
		case <-ctx.Done():
		case <-a.Done():
			reason = app.StopFatalError
		}

		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
		stopCtx, stop := context.WithTimeout(context.Background(), stopTimeout)
		defer stop()
		_ = a.Stop(stopCtx, reason)
		return a.Err()
	},
}

func init() {
	runCmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 40*time.Second, "upper bound for graceful shutdown")
	rootCmd.AddCommand(runCmd)
}
