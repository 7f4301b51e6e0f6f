package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"taskflow/internal/app"
	"taskflow/internal/config"
	"taskflow/internal/logger"
	"taskflow/internal/repository/task/postgres"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "taskflow-api",
		Short:         "TaskFlow HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := app.New(cfg)
			defer a.Close()
			if err := a.Init(ctx); err != nil {
				logger.Error("Startup failed", err)
				return err
			}
			return a.Run(ctx)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yml (default $TASKFLOW_CONFIG or ./config.yml)")

	migrateCmd := &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Apply or roll back database migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("database.url is not set")
			}
			if len(args) == 1 && args[0] == "down" {
				return postgres.Down(cfg.Database.URL)
			}
			return postgres.Migrate(cfg.Database.URL)
		},
	}
	root.AddCommand(migrateCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
