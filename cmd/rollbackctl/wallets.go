package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var walletsCmd = &cobra.Command{
	Use:   "wallets",
	Short: "Manage backup wallets",
}

var walletsListCmd = &cobra.Command{
	Use:   "list <wallet>",
	Short: "List backup wallets",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletsList,
}

var walletsSetCmd = &cobra.Command{
	Use:   "set <wallet>",
	Short: "Replace the backup wallets",
	Example: `  rollbackctl wallets set 0xabc... --backup 0xdef...:50 --backup 0x123...:50:family`,
	Args: cobra.ExactArgs(1),
	RunE: runWalletsSet,
}

var walletsSetBackups []string

func init() {
	rootCmd.AddCommand(walletsCmd)
	walletsCmd.AddCommand(walletsListCmd, walletsSetCmd)

	walletsSetCmd.Flags().StringArrayVarP(&walletsSetBackups, "backup", "b", nil,
		"Backup wallet as address:percentage[:label], repeatable (required)")
	_ = walletsSetCmd.MarkFlagRequired("backup")
}

func runWalletsList(cmd *cobra.Command, args []string) error {
	backups, err := apiClient.Wallets.List(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"walletAddress": args[0],
			"backupWallets": backups,
		})
		return nil
	}

	if len(backups) == 0 {
		printInfo("No backup wallets configured")
		return nil
	}

	fmt.Fprintf(stdout, "Backup wallets for %s:\n", args[0])
	printBackups(backups)
	return nil
}

func runWalletsSet(cmd *cobra.Command, args []string) error {
	backups, err := parseBackups(walletsSetBackups)
	if err != nil {
		return err
	}
	if len(backups) > cfg.Monitor.MaxBackupWallets {
		return fmt.Errorf("at most %d backup wallets allowed, got %d", cfg.Monitor.MaxBackupWallets, len(backups))
	}

	user, err := apiClient.Wallets.UpdateBackups(cmd.Context(), args[0], backups)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"user":    user,
		})
		return nil
	}

	printSuccess("Updated backup wallets for %s", args[0])
	printBackups(user.BackupWallets)
	return nil
}
