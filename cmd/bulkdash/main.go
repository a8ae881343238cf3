package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/bulkdash/internal/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

var (
	cfgFile  string
	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:   "bulkdash",
	Short: "Bulkdash - operator dashboard for bulk messaging campaigns",
	Long: `Bulkdash is the operator console of a bulk messaging backend: it starts
campaigns, monitors their progress, reviews replies and runs the opt-out
compliance workflow, from a web dashboard or the command line.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(envFiles...)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bulkdash %s (commit %s, built %s)\n", version, commit, buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to configuration file (BULKDASH_* variables override it)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Dotenv files to load before reading configuration (default .env)")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
