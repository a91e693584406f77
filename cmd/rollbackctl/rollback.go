package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rollbackwallet/rollbackctl/internal/models"
)

var historyCmd = &cobra.Command{
	Use:   "history <wallet>",
	Short: "Show past rollbacks of a wallet",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Estimate, validate and retry rollbacks",
}

var rollbackEstimateCmd = &cobra.Command{
	Use:   "estimate <wallet>",
	Short: "Estimate the gas cost of a rollback",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollbackEstimate,
}

var rollbackValidateCmd = &cobra.Command{
	Use:   "validate <wallet>",
	Short: "Check whether a rollback could run now",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollbackValidate,
}

var rollbackRetryCmd = &cobra.Command{
	Use:   "retry <rollback-id>",
	Short: "Retry a failed rollback",
	Long: `Retry queues a failed rollback again. With --wait it then follows the
wallet's activity stream until that rollback completes or fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runRollbackRetry,
}

var retryWait bool

func init() {
	rootCmd.AddCommand(historyCmd, rollbackCmd)
	rollbackCmd.AddCommand(rollbackEstimateCmd, rollbackValidateCmd, rollbackRetryCmd)

	rollbackRetryCmd.Flags().BoolVar(&retryWait, "wait", false,
		"Wait until the retried rollback finishes")
}

func runHistory(cmd *cobra.Command, args []string) error {
	history, err := apiClient.Rollback.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(history)
		return nil
	}

	printHistory(history)
	return nil
}

func printHistory(history *models.RollbackHistory) {
	if len(history.Rollbacks) == 0 {
		printInfo("No rollbacks for %s", history.WalletAddress)
		return
	}

	fmt.Fprintf(stdout, "Rollbacks for %s:\n", history.WalletAddress)
	for _, r := range history.Rollbacks {
		line := fmt.Sprintf("  %-12s %s  %s", r.ID, statusColor(r.Status), r.CreatedAt.Format("2006-01-02 15:04"))
		if r.TxHash != "" {
			line += "  tx " + r.TxHash
		}
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Fprintln(stdout, line)
	}

	summary := history.Summary()
	parts := make([]string, 0, 4)
	for _, s := range []models.RollbackStatus{models.RollbackCompleted, models.RollbackFailed, models.RollbackPending, models.RollbackProcessing} {
		if n := summary[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}
	fmt.Fprintf(stdout, "\n%d total: %s\n", len(history.Rollbacks), strings.Join(parts, ", "))
}

func statusColor(s models.RollbackStatus) string {
	text := fmt.Sprintf("%-10s", s)
	switch s {
	case models.RollbackCompleted:
		return color.GreenString(text)
	case models.RollbackFailed:
		return color.RedString(text)
	default:
		return color.YellowString(text)
	}
}

func runRollbackEstimate(cmd *cobra.Command, args []string) error {
	estimate, err := apiClient.Rollback.Estimate(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(estimate)
		return nil
	}

	fmt.Fprintf(stdout, "Gas limit:  %d\n", estimate.GasLimit)
	fmt.Fprintf(stdout, "Gas price:  %s wei\n", estimate.GasPrice)
	fmt.Fprintf(stdout, "Total cost: %s wei\n", estimate.TotalCost)
	fmt.Fprintf(stdout, "Balance:    %s wei\n", estimate.Balance)
	if estimate.Feasible {
		printSuccess("Rollback is feasible")
	} else {
		printWarning("Balance does not cover the rollback")
	}
	return nil
}

func runRollbackValidate(cmd *cobra.Command, args []string) error {
	result, err := apiClient.Rollback.Validate(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(result)
		return nil
	}

	if result.Valid {
		printSuccess("Rollback configuration for %s is valid", args[0])
		return nil
	}

	printWarning("Rollback configuration for %s is not valid:", args[0])
	for _, issue := range result.Issues {
		fmt.Fprintf(stdout, "  - %s\n", issue)
	}
	return nil
}

func runRollbackRetry(cmd *cobra.Command, args []string) error {
	record, err := apiClient.Rollback.Retry(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if !retryWait {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success":  true,
				"rollback": record,
			})
			return nil
		}
		printSuccess("Rollback %s queued again (attempt %d)", record.ID, record.Attempts)
		return nil
	}

	if record.WalletAddress == "" {
		return fmt.Errorf("rollback %s has no wallet to follow", record.ID)
	}
	if !jsonOutput {
		printSuccess("Rollback %s queued again (attempt %d)", record.ID, record.Attempts)
		printInfo("Waiting for rollback %s (Ctrl+C to stop)", record.ID)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ev, err := apiClient.Monitor.WaitForRollback(ctx, record.WalletAddress, record.ID)
	if err != nil {
		return fmt.Errorf("wait for rollback %s: %w", record.ID, err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":  ev.Type == models.ActivityRollbackCompleted,
			"rollback": record,
			"result":   ev,
		})
	} else {
		printEvent(*ev)
	}

	if ev.Type == models.ActivityRollbackFailed {
		return fmt.Errorf("rollback %s failed: %s", ev.RollbackID, ev.Message)
	}
	return nil
}
