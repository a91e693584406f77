package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rollbackwallet/rollbackctl/internal/config"
)

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Inspect and create configuration",
	Annotations: offline(),
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example config file",
	Long: `Init writes the default configuration as JSON. The encryption key is
never written to the file; set ROLLBACK_ENCRYPTION_KEY instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
	// Skips config loading
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)

	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false,
		"Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "rollbackctl.json"
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.SaveExample(path); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "path": path})
		return nil
	}

	printSuccess("Wrote %s", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// Never print the key
	shown := *cfg
	shown.Encryption.Key = ""

	printJSON(map[string]interface{}{
		"config":            shown,
		"using_default_key": cfg.Encryption.UsingDefaultKey,
	})
	return nil
}
