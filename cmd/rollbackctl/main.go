package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rollbackwallet/rollbackctl/internal/client"
	"github.com/rollbackwallet/rollbackctl/internal/config"
	"github.com/rollbackwallet/rollbackctl/internal/events"
)

var (
	// Build information injected at build time
	version = "dev"
	commit  = "unknown"

	cfgFile    string
	envFile    string
	logLevel   string
	jsonOutput bool

	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin
)

// Commands with this annotation run without a backend client.
const offlineAnnotation = "offline"

var rootCmd = &cobra.Command{
	Use:   "rollbackctl",
	Short: "Manage wallet rollback registrations",
	Long: `rollbackctl registers wallets with the rollback service, manages their
backup wallets and watches inactivity monitoring.

Private keys are encrypted locally before they are sent. The passphrase
comes from encryption.key, ROLLBACK_ENCRYPTION_KEY or ENCRYPTION_KEY.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file (default: ./rollbackctl.json or ~/.config/rollbackctl/config.json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"Dotenv file read before the environment (empty to disable)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Print machine readable JSON")
}

func setup(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile).WithEnvFile(envFile)

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	cmd.SetContext(events.WithRequestID(events.WithLogger(cmd.Context(), logger), uuid.NewString()))

	if path := loader.ConfigPath(); path != "" {
		logger.WithField("path", path).Debug("Loaded config file")
	}

	// An explicit --key replaces the configured passphrase
	if cfg.Encryption.UsingDefaultKey && cryptoKey == "" && !jsonOutput {
		printWarning("Using the built-in development encryption key. Set ROLLBACK_ENCRYPTION_KEY for real wallets.")
	}

	if isOffline(cmd) {
		return nil
	}

	apiClient, err = client.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	return nil
}

func teardown(cmd *cobra.Command, args []string) {
	if apiClient != nil {
		if err := apiClient.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close client")
		}
		apiClient = nil
	}
	if logger != nil {
		_ = logger.Close()
	}
}

func isOffline(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[offlineAnnotation]; ok {
			return true
		}
	}
	return false
}

func offline() map[string]string {
	return map[string]string{offlineAnnotation: "true"}
}

// Output helpers

func printJSON(v interface{}) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "encode output: %v\n", err)
	}
}

func printSuccess(format string, args ...interface{}) {
	fmt.Fprintln(stdout, color.GreenString(format, args...))
}

func printInfo(format string, args ...interface{}) {
	fmt.Fprintln(stdout, color.CyanString(format, args...))
}

func printWarning(format string, args ...interface{}) {
	fmt.Fprintln(stderr, color.YellowString(format, args...))
}

func printError(format string, args ...interface{}) {
	fmt.Fprintln(stderr, color.RedString(format, args...))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
		} else {
			printError("Error: %v", err)
		}
		os.Exit(1)
	}
}
