package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/bulkdash/internal/compliance"
	"github.com/foxzi/bulkdash/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	apiKey := "not set"
	if cfg.Backend.APIKey != "" {
		apiKey = "set"
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address:  %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Backend:         %s (timeout %s)\n", cfg.Backend.URL, cfg.Backend.Timeout)
	fmt.Printf("  API key:         %s\n", apiKey)
	fmt.Printf("  Poll interval:   %s\n", cfg.Dashboard.PollInterval)
	fmt.Printf("  Page size:       %d\n", cfg.Dashboard.PageSize)
	fmt.Printf("  Footer:          %s\n", compliance.NewPolicy(cfg.Compliance.Brand).Footer())
	fmt.Printf("  Audit log:       %s\n", cfg.Storage.AuditPath)
	fmt.Printf("  Export dir:      %s\n", cfg.Storage.ExportDir)
	fmt.Printf("  Metrics:         %v", cfg.Metrics.Enabled)
	if cfg.Metrics.Enabled {
		fmt.Printf(" (%s%s)", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}
	fmt.Println()
	fmt.Printf("  Logging:         %s/%s\n", cfg.Logging.Level, cfg.Logging.Format)

	return nil
}
