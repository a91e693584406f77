package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rollbackwallet/rollbackctl/internal/models"
	"github.com/rollbackwallet/rollbackctl/internal/services/users"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a wallet for automatic rollback",
	Long: `Register encrypts the wallet's private key locally and sends it with the
backup wallets to the rollback service. Backups are given as
address:percentage[:label] and their percentages must add up to 100.`,
	Example: `  rollbackctl register --wallet 0xabc... --backup 0xdef...:60:cold --backup 0x123...:40
  echo "$PRIVATE_KEY" | rollbackctl register --wallet 0xabc... --backup 0xdef...:100 --stdin`,
	RunE: runRegister,
}

var (
	registerWallet     string
	registerPrivateKey string
	registerBackups    []string
	registerDays       int
	registerEmail      string
	registerStdin      bool
	registerMonitor    bool
)

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().StringVarP(&registerWallet, "wallet", "w", "",
		"Primary wallet address (required)")
	registerCmd.Flags().StringVar(&registerPrivateKey, "private-key", "",
		"Private key (will prompt if not provided)")
	registerCmd.Flags().StringArrayVarP(&registerBackups, "backup", "b", nil,
		"Backup wallet as address:percentage[:label], repeatable")
	registerCmd.Flags().IntVar(&registerDays, "inactivity-days", 0,
		"Days of inactivity before rollback (default: monitor.inactivity_days)")
	registerCmd.Flags().StringVar(&registerEmail, "email", "",
		"Notification email")
	registerCmd.Flags().BoolVar(&registerStdin, "stdin", false,
		"Read the private key from stdin")
	registerCmd.Flags().BoolVar(&registerMonitor, "monitor", false,
		"Start monitoring after registration")

	_ = registerCmd.MarkFlagRequired("wallet")
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	backups, err := parseBackups(registerBackups)
	if err != nil {
		return err
	}
	if len(backups) > cfg.Monitor.MaxBackupWallets {
		return fmt.Errorf("at most %d backup wallets allowed, got %d", cfg.Monitor.MaxBackupWallets, len(backups))
	}

	privateKey, err := readSecret(registerPrivateKey, registerStdin, "Private key: ")
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}

	days := registerDays
	if days == 0 {
		days = cfg.Monitor.InactivityDays
	}

	user, err := apiClient.Users.Register(ctx, users.RegisterInput{
		WalletAddress:  registerWallet,
		PrivateKey:     privateKey,
		BackupWallets:  backups,
		InactivityDays: days,
		Email:          registerEmail,
	})
	if err != nil {
		return err
	}

	var status *models.MonitorStatus
	if registerMonitor {
		status, err = apiClient.Monitor.Trigger(ctx, registerWallet)
		if err != nil {
			return fmt.Errorf("registered, but %w", err)
		}
	}

	if jsonOutput {
		result := map[string]interface{}{
			"success": true,
			"user":    user,
		}
		if status != nil {
			result["monitor"] = status
		}
		printJSON(result)
		return nil
	}

	printSuccess("Registered %s (user %s)", registerWallet, user.ID)
	printBackups(backups)
	if status != nil {
		printInfo("Monitoring started, rollback after %d days of inactivity", status.InactivityDays)
	}
	return nil
}

// parseBackups parses address:percentage[:label] values.
func parseBackups(values []string) ([]models.BackupWallet, error) {
	backups := make([]models.BackupWallet, 0, len(values))
	for _, v := range values {
		parts := strings.SplitN(v, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid backup %q: want address:percentage[:label]", v)
		}

		pct, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid backup %q: percentage: %w", v, err)
		}

		b := models.BackupWallet{
			Address:    strings.TrimSpace(parts[0]),
			Percentage: pct,
		}
		if len(parts) == 3 {
			b.Label = strings.TrimSpace(parts[2])
		}
		backups = append(backups, b)
	}
	return backups, nil
}

func printBackups(backups []models.BackupWallet) {
	for _, b := range backups {
		if b.Label != "" {
			fmt.Fprintf(stdout, "  %s  %3d%%  %s\n", b.Address, b.Percentage, b.Label)
		} else {
			fmt.Fprintf(stdout, "  %s  %3d%%\n", b.Address, b.Percentage)
		}
	}
}
