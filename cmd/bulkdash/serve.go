package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/foxzi/bulkdash/internal/app"
	"github.com/foxzi/bulkdash/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web dashboard",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	application.CheckBackend(ctx)
	return application.Run(ctx)
}
