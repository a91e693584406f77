package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rollbackwallet/rollbackctl/internal/crypto"
	"github.com/rollbackwallet/rollbackctl/internal/models"
	"github.com/rollbackwallet/rollbackctl/internal/state"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect and manage locally stored wallet profiles",
	Long: `Every successful register saves a profile: the encrypted private key,
the backup wallets and the last fetched rollback history. These commands
read that profile without contacting the backend, except resubmit.`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfileList,
}

var profileShowCmd = &cobra.Command{
	Use:   "show <wallet>",
	Short: "Show a stored profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileShow,
}

var profileResetCmd = &cobra.Command{
	Use:   "reset <wallet>",
	Short: "Forget the stored profile of a wallet",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileReset,
}

var profileResubmitCmd = &cobra.Command{
	Use:   "resubmit <wallet>",
	Short: "Register a wallet again from its stored profile",
	Long: `Resubmit sends the stored registration again. The stored encrypted key
is reused, so the private key is not needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runProfileResubmit,
}

var profileMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy stored profiles to another storage backend",
	Example: `  rollbackctl profile migrate --to sqlite
  # then set storage.backend = "sqlite"`,
	Args: cobra.NoArgs,
	RunE: runProfileMigrate,
}

var (
	profileVerify    bool
	profileMigrateTo string
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileListCmd, profileShowCmd, profileResetCmd, profileResubmitCmd, profileMigrateCmd)

	profileShowCmd.Flags().BoolVar(&profileVerify, "verify", false,
		"Check that the stored key decrypts with the configured passphrase")

	profileMigrateCmd.Flags().StringVar(&profileMigrateTo, "to", "",
		"Target backend: json or sqlite")
	_ = profileMigrateCmd.MarkFlagRequired("to")
}

func runProfileList(cmd *cobra.Command, args []string) error {
	profiles, err := apiClient.Profiles.ListProfiles()
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}

	if jsonOutput {
		printJSON(profiles)
		return nil
	}

	if len(profiles) == 0 {
		printInfo("No stored profiles")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WALLET\tUSER\tBACKUPS\tINACTIVITY\tROLLBACKS")
	for _, p := range profiles {
		fmt.Fprintf(w, "%s\t%s\t%d\t%dd\t%d\n", p.WalletAddress, p.UserID, p.Backups, p.InactivityDays, p.Rollbacks)
	}
	return w.Flush()
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	profile, err := apiClient.Profiles.LoadProfile(args[0])
	if err != nil {
		return profileError(args[0], err)
	}

	var verifyErr error
	if profileVerify {
		_, verifyErr = apiClient.Encryptor.Decrypt(profile.EncryptedPrivateKey, apiClient.KeyMaterial())
	}

	if jsonOutput {
		out := map[string]interface{}{"profile": profile}
		if profileVerify {
			out["key_verified"] = verifyErr == nil
		}
		printJSON(out)
		return verifyErr
	}

	fmt.Fprintf(stdout, "Wallet:        %s\n", profile.WalletAddress)
	if profile.UserID != "" {
		fmt.Fprintf(stdout, "User:          %s\n", profile.UserID)
	}
	if profile.Email != "" {
		fmt.Fprintf(stdout, "Email:         %s\n", profile.Email)
	}
	fmt.Fprintf(stdout, "Inactivity:    %d days\n", profile.InactivityDays)
	if !profile.RegisteredAt.IsZero() {
		fmt.Fprintf(stdout, "Registered:    %s\n", profile.RegisteredAt.Local().Format(time.RFC1123))
	}

	if blob, err := crypto.Decode(profile.EncryptedPrivateKey); err == nil {
		fmt.Fprintf(stdout, "Encrypted key: %d bytes\n", blob.Len())
	} else {
		printWarning("Encrypted key: %v", err)
	}

	fmt.Fprintln(stdout, "Backups:")
	printBackups(profile.BackupWallets)
	fmt.Fprintln(stdout)

	printHistory(&models.RollbackHistory{
		WalletAddress: profile.WalletAddress,
		Rollbacks:     profile.History,
	})

	if profileVerify {
		if verifyErr != nil {
			return fmt.Errorf("stored key does not decrypt with the configured passphrase: %w", verifyErr)
		}
		printSuccess("Stored key decrypts with the configured passphrase")
	}
	return nil
}

func runProfileReset(cmd *cobra.Command, args []string) error {
	if _, err := apiClient.Profiles.LoadProfile(args[0]); err != nil {
		return profileError(args[0], err)
	}

	if err := apiClient.Profiles.Reset(args[0]); err != nil {
		return fmt.Errorf("reset profile: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "wallet": args[0]})
		return nil
	}

	printSuccess("Forgot the stored profile of %s", args[0])
	return nil
}

func runProfileResubmit(cmd *cobra.Command, args []string) error {
	user, err := apiClient.Users.Resubmit(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "user": user})
		return nil
	}

	printSuccess("Registered %s again (user %s)", user.WalletAddress, user.ID)
	return nil
}

func runProfileMigrate(cmd *cobra.Command, args []string) error {
	n, err := apiClient.Profiles.Migrate(profileMigrateTo)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "backend": profileMigrateTo, "profiles": n})
		return nil
	}

	printSuccess("Copied profiles to the %s backend (%d stored)", profileMigrateTo, n)
	printInfo("Set storage.backend = %q to use it", profileMigrateTo)
	return nil
}

func profileError(wallet string, err error) error {
	if errors.Is(err, state.ErrStateNotFound) {
		return fmt.Errorf("no stored profile for %s: %w", wallet, err)
	}
	return fmt.Errorf("load profile: %w", err)
}
