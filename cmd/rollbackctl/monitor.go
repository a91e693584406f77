package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rollbackwallet/rollbackctl/internal/models"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Control inactivity monitoring",
}

var monitorStartCmd = &cobra.Command{
	Use:   "start <wallet>",
	Short: "Start monitoring a wallet",
	Args:  cobra.ExactArgs(1),
	RunE:  runMonitorStart,
}

var monitorStatusCmd = &cobra.Command{
	Use:   "status <wallet>",
	Short: "Show monitoring status",
	Args:  cobra.ExactArgs(1),
	RunE:  runMonitorStatus,
}

var monitorWatchCmd = &cobra.Command{
	Use:   "watch <wallet>",
	Short: "Stream wallet activity",
	Long: `Watch prints activity events until interrupted. With --until-rollback
it exits when a rollback completes or fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitorWatch,
}

var watchUntilRollback bool

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.AddCommand(monitorStartCmd, monitorStatusCmd, monitorWatchCmd)

	monitorWatchCmd.Flags().BoolVar(&watchUntilRollback, "until-rollback", false,
		"Exit after the next rollback finishes")
}

func runMonitorStart(cmd *cobra.Command, args []string) error {
	status, err := apiClient.Monitor.Trigger(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(status)
		return nil
	}

	printSuccess("Monitoring %s", args[0])
	printMonitorStatus(status)
	return nil
}

func runMonitorStatus(cmd *cobra.Command, args []string) error {
	status, err := apiClient.Monitor.Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(status)
		return nil
	}

	if !status.Active {
		printWarning("Monitoring is not active for %s", args[0])
		return nil
	}
	printMonitorStatus(status)
	return nil
}

func printMonitorStatus(status *models.MonitorStatus) {
	now := time.Now()
	fmt.Fprintf(stdout, "  Threshold:     %d days\n", status.InactivityDays)
	if !status.LastActivity.IsZero() {
		fmt.Fprintf(stdout, "  Last activity: %s\n", status.LastActivity.Local().Format(time.RFC1123))
		fmt.Fprintf(stdout, "  Rollback in:   %d days\n", status.DaysUntilRollback(now))
	}
	if !status.NextCheck.IsZero() {
		fmt.Fprintf(stdout, "  Next check:    %s\n", status.NextCheck.Local().Format(time.RFC1123))
	}
}

func runMonitorWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			printWarning("\nWatch interrupted, closing stream...")
			cancel()
		case <-ctx.Done():
		}
	}()

	stream, err := apiClient.Monitor.Watch(ctx, args[0])
	if err != nil {
		return err
	}

	if !jsonOutput {
		printInfo("Watching %s (Ctrl+C to stop)", args[0])
	}

	for ev := range stream {
		printEvent(ev)
		if watchUntilRollback && ev.Terminal() {
			if ev.Type == models.ActivityRollbackFailed {
				return fmt.Errorf("rollback %s failed: %s", ev.RollbackID, ev.Message)
			}
			return nil
		}
	}

	if watchUntilRollback && ctx.Err() == nil {
		return models.ErrConnectionLost
	}
	return nil
}

func printEvent(ev models.ActivityEvent) {
	if jsonOutput {
		printJSON(ev)
		return
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("[%s] %-20s", ts.Local().Format("15:04:05"), ev.Type)
	if ev.TxHash != "" {
		line += " tx " + ev.TxHash
	}
	if ev.RollbackID != "" {
		line += " rollback " + ev.RollbackID
	}
	if ev.Message != "" {
		line += " " + ev.Message
	}

	switch ev.Type {
	case models.ActivityRollbackCompleted:
		printSuccess("%s", line)
	case models.ActivityRollbackFailed, models.ActivityError:
		printError("%s", line)
	case models.ActivityInactivityWarning:
		printWarning("%s", line)
	default:
		fmt.Fprintln(stdout, line)
	}
}
